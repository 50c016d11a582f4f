package delivery

import "strings"

// Endpoint 由域名与 stage 拼出管理端点，scheme 为空时使用 https
func Endpoint(domain, stage, scheme string) string {
	if scheme == "" {
		scheme = "https"
	}
	domain = strings.TrimRight(domain, "/")
	stage = strings.Trim(stage, "/")
	if stage == "" {
		return scheme + "://" + domain
	}
	return scheme + "://" + domain + "/" + stage
}
