package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// newUpgrader 按配置构建升级器
func newUpgrader(cfg *Config) *websocket.Upgrader {
	checkOrigin := sameOrigin
	switch {
	case cfg.AllowAllOrigins:
		checkOrigin = func(*http.Request) bool { return true }
	case len(cfg.AllowedOrigins) > 0:
		checkOrigin = originWhitelist(cfg.AllowedOrigins)
	}

	return &websocket.Upgrader{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		CheckOrigin:       checkOrigin,
		EnableCompression: cfg.EnableCompression,
	}
}

// sameOrigin 同源检查，拒绝空 Origin
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func originWhitelist(allowed []string) func(*http.Request) bool {
	whitelist := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		whitelist[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := whitelist[r.Header.Get("Origin")]
		return ok
	}
}
