// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: janela fixa por (identificador, rota) em memória, com janitor
//   - RedisStore: a mesma janela fixa via script Lua, compartilhada entre instâncias
//   - Memory/Redis/PrometheusStats: estatísticas de decisão
//   - SemaphorePool: vagas de concorrência para o upstream de IA
//   - LoadPolicyFile: tabela de limites por rota em YAML
package infra
