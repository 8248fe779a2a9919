package registry

import (
	"net/url"
	"strings"
)

// VOD is a supported streaming site.
type VOD struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	AllowCapture bool   `json:"allowCapture"`
	hosts        []string
}

var vods = []VOD{
	{Key: "dAnime", Name: "dアニメストア", AllowCapture: true, hosts: []string{"animestore.docomo.ne.jp"}},
	{Key: "primeVideo", Name: "Prime Video", hosts: []string{"www.amazon.co.jp", "www.primevideo.com"}},
	{Key: "abema", Name: "ABEMA", AllowCapture: true, hosts: []string{"abema.tv"}},
	{Key: "disneyPlus", Name: "Disney+", hosts: []string{"www.disneyplus.com"}},
	{Key: "tver", Name: "TVer", AllowCapture: true, hosts: []string{"tver.jp"}},
	{Key: "bandaiChannel", Name: "バンダイチャンネル", AllowCapture: true, hosts: []string{"www.b-ch.com"}},
	{Key: "unext", Name: "U-NEXT", hosts: []string{"video.unext.jp"}},
	{Key: "dmmTv", Name: "DMM TV", AllowCapture: true, hosts: []string{"tv.dmm.com"}},
	{Key: "hulu", Name: "Hulu", hosts: []string{"www.hulu.jp"}},
	{Key: "lemino", Name: "Lemino", hosts: []string{"lemino.docomo.ne.jp"}},
}

// VODs lists every supported site in display order.
func VODs() []VOD {
	return append([]VOD(nil), vods...)
}

// CaptureVODNames lists the display names of sites that allow captures.
func CaptureVODNames() []string {
	var names []string
	for _, v := range vods {
		if v.AllowCapture {
			names = append(names, v.Name)
		}
	}
	return names
}

// DetectVOD maps a page URL to its streaming site.
func DetectVOD(rawURL string) (VOD, string, bool) {
	host, ok := hostname(rawURL)
	if !ok {
		return VOD{}, "", false
	}
	for _, v := range vods {
		for _, h := range v.hosts {
			if host == h {
				return v, host, true
			}
		}
	}
	return VOD{}, host, false
}

func hostname(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	return host, host != ""
}
