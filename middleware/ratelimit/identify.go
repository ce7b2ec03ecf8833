package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"learn-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai o identificador do cliente a partir do request.
type KeyFunc func(r *http.Request) string

// Extractor é uma fonte de identidade; devolve "" quando não se aplica.
type Extractor func(r *http.Request) string

// ForwardedFor devolve o primeiro IP do X-Forwarded-For (cliente original).
func ForwardedFor(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// Header lê um header simples, com trim.
func Header(name string) Extractor {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// RemoteHost é o IP do peer TCP, sem porta.
func RemoteHost(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ProxyExtractors é a ordem de precedência atrás de proxy/CDN.
// Esses headers são controlados pelo cliente: só use quando o gateway
// estiver atrás de um proxy que os sobrescreve.
var ProxyExtractors = []Extractor{
	ForwardedFor,
	Header("X-Real-IP"),
	Header("CF-Connecting-IP"),
	RemoteHost,
}

// ChainIdentifier usa o primeiro extractor que devolver valor não vazio.
// Sem nenhum, todos caem no bucket compartilhado "unknown".
func ChainIdentifier(extractors ...Extractor) KeyFunc {
	return func(r *http.Request) string {
		for _, ex := range extractors {
			if v := ex(r); v != "" {
				return v
			}
		}
		return domain.UnknownIdentifier
	}
}

// DefaultKeyFunc: com trustProxy segue ProxyExtractors, senão só RemoteAddr.
func DefaultKeyFunc(trustProxy bool) KeyFunc {
	if trustProxy {
		return ChainIdentifier(ProxyExtractors...)
	}
	return ChainIdentifier(RemoteHost)
}
