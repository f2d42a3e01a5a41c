// SPDX-License-Identifier: MIT

package bili

// navResponse carries the wbi key material from /x/web-interface/nav.
// The endpoint works without login; only the image URLs matter here.
type navResponse struct {
	Data struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	} `json:"data"`
}

// viewData is the subset of /x/web-interface/view the resolver needs.
type viewData struct {
	Bvid     string  `json:"bvid"`
	Cid      int64   `json:"cid"`
	Title    string  `json:"title"`
	Pic      *string `json:"pic"`
	Duration int64   `json:"duration"`
}

type viewResponse struct {
	Data viewData `json:"data"`
}

// playURLResponse is the answer of /x/player/wbi/playurl. durl carries the
// progressive MP4 variants, dash the segmented streams this daemon cannot
// relay to a plain <video> element.
type playURLResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Durl []struct {
			URL string `json:"url"`
		} `json:"durl"`
		Dash *struct {
			Video []struct {
				BaseURL string `json:"baseUrl"`
			} `json:"video"`
		} `json:"dash"`
	} `json:"data"`
}
