// Package domain define contratos e tipos de domínio para o rate limit das rotas de IA.
//
// Aqui ficam a aritmética de janela fixa (Admit), a tabela de políticas por rota
// e as interfaces de store/estatísticas. Este pacote não depende de net/http nem
// de implementações concretas.
package domain
