package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/pkg/database"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions (Things GORM AutoMigrate doesn't do)
	log.Println("Step 1: Setting up Extensions...")

	setupSQL := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
		`CREATE EXTENSION IF NOT EXISTS vector;`,
	}

	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}

	// 4. AutoMigrate All Models
	log.Println("Step 2: Running AutoMigrate...")

	models := []interface{}{
		&model.ChunkEmbedding{},
		&model.DocumentLink{},
		&model.Conversation{},
		&model.ConversationTurn{},
		&model.ConversationSummary{},
		&model.RetrievalTrace{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: Indexes the retrieval path depends on
	log.Println("Step 3: Creating retrieval indexes...")

	postMigrationSQL := []string{
		// Full-text search index for the lexical retrieval leg.
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_text_fts
		 ON chunk_embeddings USING GIN (to_tsvector('english', text));`,

		// ANN index for the vector retrieval leg.
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_vector
		 ON chunk_embeddings USING ivfflat (embedding_value vector_cosine_ops) WITH (lists = 100);`,

		// Ordinal lookups for neighbor expansion.
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_doc_ordinal
		 ON chunk_embeddings (tenant_id, document_id, ordinal);`,

		// Turn ordering within a conversation.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversation_turns_order
		 ON conversation_turns (conversation_id, turn_index);`,

		// One summary per conversation, version and mode.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversation_summaries_version
		 ON conversation_summaries (conversation_id, version, mode);`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
