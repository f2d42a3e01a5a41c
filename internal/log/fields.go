// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRoom      = "room"
	FieldTempUser  = "temp_user"
	FieldClientID  = "client_id"
	FieldToken     = "token"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media fields
	FieldSourceType = "source_type"
	FieldStrategy   = "strategy"
	FieldTitle      = "title"

	// Path / URL fields
	FieldPath      = "path"
	FieldURL       = "url"
	FieldMediaRoot = "media_root"

	// Network fields
	FieldAddr       = "addr"
	FieldRemoteAddr = "remote_addr"
)
