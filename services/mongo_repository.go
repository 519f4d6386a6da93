package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-ingest-platform/models"
	"knowledge-ingest-platform/utils"
)

type MongoDocumentRepository struct {
	col *mongo.Collection
}

func NewMongoDocumentRepository(db *mongo.Database) *MongoDocumentRepository {
	return &MongoDocumentRepository{col: db.Collection("documents")}
}

func (r *MongoDocumentRepository) Insert(ctx context.Context, doc *models.Document) error {
	_, err := r.col.InsertOne(ctx, doc)
	return err
}

func (r *MongoDocumentRepository) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *MongoDocumentRepository) List(ctx context.Context, limit, offset int64) ([]models.Document, int64, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *MongoDocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ClaimPending is the lease primitive: a single conditional update that only
// matches while the document is still pending. Losing the race surfaces as
// ErrClaimConflict, never as a double claim.
func (r *MongoDocumentRepository) ClaimPending(ctx context.Context, id string, startedAt, deadlineAt time.Time) (*models.Document, error) {
	filter := bson.M{"_id": id, "status": models.StatusPending}
	update := bson.M{
		"$set": bson.M{
			"status":      models.StatusProcessing,
			"started_at":  startedAt,
			"deadline_at": deadlineAt,
			"progress":    0,
			"updated_at":  startedAt,
		},
		"$inc": bson.M{"attempts": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc models.Document
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClaimConflict
		}
		return nil, err
	}
	return &doc, nil
}

func (r *MongoDocumentRepository) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	now := time.Now()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"completed_at": now,
			"progress":     100,
			"chunk_count":  chunkCount,
			"updated_at":   now,
		},
	})
	return err
}

func (r *MongoDocumentRepository) MarkFailed(ctx context.Context, id string, perr models.ProcessingError) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":     models.StatusFailed,
			"last_error": perr,
			"updated_at": time.Now(),
		},
	})
	return err
}

func (r *MongoDocumentRepository) ReturnToPending(ctx context.Context, id string, perr models.ProcessingError) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "status": models.StatusProcessing}, bson.M{
		"$set": bson.M{
			"status":     models.StatusPending,
			"last_error": perr,
			"updated_at": time.Now(),
		},
		"$unset": bson.M{
			"started_at":  "",
			"deadline_at": "",
		},
	})
	return err
}

func (r *MongoDocumentRepository) SetProgress(ctx context.Context, id string, progress int) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"progress":   progress,
			"updated_at": time.Now(),
		},
	})
	return err
}

func (r *MongoDocumentRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Status] = row.Count
	}
	return counts, cursor.Err()
}

func (r *MongoDocumentRepository) FindProcessingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	filter := bson.M{
		"status":     models.StatusProcessing,
		"started_at": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// chunkRecord is the storage form of a chunk. Content above the compression
// floor is stored gzip-compressed.
type chunkRecord struct {
	ID          string                     `bson:"_id"`
	DocumentID  string                     `bson:"document_id"`
	Index       int                        `bson:"chunk_index"`
	Content     string                     `bson:"content,omitempty"`
	Compressed  []byte                     `bson:"content_compressed,omitempty"`
	Compression utils.CompressionAlgorithm `bson:"compression,omitempty"`
	TokenCount  int                        `bson:"token_count"`
	StartOffset int                        `bson:"start_offset"`
	EndOffset   int                        `bson:"end_offset"`
	Method      string                     `bson:"method,omitempty"`
	Embedding   []float32                  `bson:"embedding,omitempty"`
	CreatedAt   time.Time                  `bson:"created_at"`
}

func toRecord(c models.Chunk) (chunkRecord, error) {
	rec := chunkRecord{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		Index:       c.Index,
		TokenCount:  c.TokenCount,
		StartOffset: c.StartOffset,
		EndOffset:   c.EndOffset,
		Method:      c.Method,
		Embedding:   c.Embedding,
		CreatedAt:   c.CreatedAt,
	}

	data, algorithm, err := utils.CompressText(c.Content)
	if err != nil {
		return chunkRecord{}, fmt.Errorf("compress chunk %s: %w", c.ID, err)
	}
	if algorithm == utils.CompressionNone {
		rec.Content = c.Content
	} else {
		rec.Compressed = data
		rec.Compression = algorithm
	}
	return rec, nil
}

func (rec chunkRecord) toChunk() (models.Chunk, error) {
	content := rec.Content
	if rec.Compression != "" && rec.Compression != utils.CompressionNone {
		decoded, err := utils.DecompressText(rec.Compressed, rec.Compression)
		if err != nil {
			return models.Chunk{}, fmt.Errorf("decompress chunk %s: %w", rec.ID, err)
		}
		content = decoded
	}

	return models.Chunk{
		ID:          rec.ID,
		DocumentID:  rec.DocumentID,
		Index:       rec.Index,
		Content:     content,
		TokenCount:  rec.TokenCount,
		StartOffset: rec.StartOffset,
		EndOffset:   rec.EndOffset,
		Method:      rec.Method,
		Embedding:   rec.Embedding,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

type MongoChunkRepository struct {
	col *mongo.Collection
}

func NewMongoChunkRepository(db *mongo.Database) *MongoChunkRepository {
	return &MongoChunkRepository{col: db.Collection("chunks")}
}

func (r *MongoChunkRepository) Replace(ctx context.Context, documentID string, chunks []models.Chunk) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, len(chunks))
	for i, c := range chunks {
		rec, err := toRecord(c)
		if err != nil {
			return err
		}
		docs[i] = rec
	}

	_, err := r.col.InsertMany(ctx, docs)
	return err
}

func (r *MongoChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"document_id": documentID})
	return err
}

func (r *MongoChunkRepository) ByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeChunks(ctx, cursor)
}

func (r *MongoChunkRepository) AllEmbedded(ctx context.Context) ([]models.Chunk, error) {
	filter := bson.M{"embedding": bson.M{"$exists": true, "$ne": nil}}
	opts := options.Find().SetSort(bson.D{
		{Key: "document_id", Value: 1},
		{Key: "chunk_index", Value: 1},
	})

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeChunks(ctx, cursor)
}

func (r *MongoChunkRepository) MissingEmbeddingCounts(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"embedding": bson.M{"$exists": false}},
				bson.M{"embedding": nil},
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$document_id",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			DocumentID string `bson:"_id"`
			Count      int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.DocumentID] = row.Count
	}
	return counts, cursor.Err()
}

func decodeChunks(ctx context.Context, cursor *mongo.Cursor) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for cursor.Next(ctx) {
		var rec chunkRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		chunk, err := rec.toChunk()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, cursor.Err()
}
