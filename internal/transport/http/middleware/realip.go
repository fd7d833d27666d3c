package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP извлекает IP клиента: первый адрес из X-Forwarded-For,
// иначе X-Real-Ip, иначе host-часть RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); rip != "" {
		return rip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
