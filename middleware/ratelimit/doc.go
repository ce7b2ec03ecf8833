// Package ratelimit é o adapter HTTP (net/http) do limiter de janela fixa por
// (identificador, rota), do limite de concorrência e da superfície de monitoramento.
//
// Camadas:
//
//   - domain: tipos e contratos (janela, política, stats), sem net/http
//   - application: checkLimit com fail-open, acquire com timeout
//   - infra: stores em memória e Redis, stats (memória/Redis/Prometheus), semáforo, arquivo de política
//   - ratelimit (este pacote): identificação do cliente, 429/503 em JSON, headers X-RateLimit-*,
//     monitoramento e rotas administrativas
//
// Fluxo no gateway:
//
//  1. Identifica o cliente (X-Forwarded-For, X-Real-IP, CF-Connecting-IP, RemoteAddr)
//  2. application.Service.Check decide para (identificador, path)
//  3. Bloqueado: 429 com Retry-After e corpo JSON
//  4. Permitido: headers X-RateLimit-* e segue para o próximo handler (reverse proxy)
package ratelimit
