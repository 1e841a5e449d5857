package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// OutcomeDoc define a estrutura do documento no Meilisearch. Um documento
// por usuário: a PK user_id transforma cada indexação num upsert.
type OutcomeDoc struct {
	UserID             string `json:"user_id"`
	Status             string `json:"status"`
	DurationMS         int64  `json:"duration_ms"`
	TimestampFormatted string `json:"timestamp_formatted"`
	Timestamp          int64  `json:"timestamp"`
}

// Indexer guarda a conexão aberta com o Meilisearch.
type Indexer struct {
	client    meilisearch.ServiceManager
	indexName string
}

// NewIndexer cria a conexão e garante que o índice de desfechos existe,
// pronto para o painel do operador filtrar por status.
func NewIndexer(host, apiKey, indexName string) *Indexer {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))

	_, err := client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        indexName,
		PrimaryKey: "user_id",
	})
	if err != nil {
		log.Printf("Aviso Meilisearch: %v", err)
	}

	client.Index(indexName).UpdateSearchableAttributes(&[]string{
		"user_id",
		"status",
	})

	client.Index(indexName).UpdateSortableAttributes(&[]string{
		"timestamp",
		"duration_ms",
	})

	filterableAttrs := []interface{}{"status"}
	client.Index(indexName).UpdateFilterableAttributes(&filterableAttrs)

	fmt.Println("Conectado ao Meilisearch!")

	return &Indexer{
		client:    client,
		indexName: indexName,
	}
}

// Record indexa o desfecho de uma autorização. Erros são só logados: o
// índice é um espelho de conveniência, a fonte da verdade é o Postgres.
func (i *Indexer) Record(ctx context.Context, userID, status string, elapsed time.Duration) {
	now := time.Now()
	doc := OutcomeDoc{
		UserID:             userID,
		Status:             status,
		DurationMS:         elapsed.Milliseconds(),
		TimestampFormatted: now.Format("02/01/2006 15:04"),
		Timestamp:          now.Unix(),
	}

	pk := "user_id"
	task, err := i.client.Index(i.indexName).UpdateDocuments([]OutcomeDoc{doc}, &meilisearch.DocumentOptions{PrimaryKey: &pk})
	if err != nil {
		log.Printf("Erro ao indexar desfecho de %s: %v", userID, err)
		return
	}
	fmt.Printf("Desfecho de %s enviado para Meilisearch (Task UID: %d)\n", userID, task.TaskUID)
}
