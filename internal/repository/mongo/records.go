package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviecatalog/internal/domain"
)

const DefaultCollection = "user_movies"

// RecordRepository keeps personal movie records in MongoDB, one document
// per (username, movie id). It satisfies ports.RecordRepository.
type RecordRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

type recordDoc struct {
	Username   string `bson:"username"`
	MovieID    string `bson:"movieId"`
	Title      string `bson:"title"`
	Year       string `bson:"year"`
	Runtime    string `bson:"runtime"`
	Genre      string `bson:"genre"`
	Director   string `bson:"director"`
	Poster     string `bson:"poster"`
	IsFavorite bool   `bson:"isFavorite"`
	CreatedAt  int64  `bson:"createdAt"`
	UpdatedAt  int64  `bson:"updatedAt"`
}

func NewRecordRepository(client *mongo.Client, dbName, collectionName string) *RecordRepository {
	if collectionName == "" {
		collectionName = DefaultCollection
	}
	return &RecordRepository{
		collection: client.Database(dbName).Collection(collectionName),
		now:        time.Now,
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *RecordRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "movieId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "username", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// UserMovies returns the records of username in the order they were first
// stored.
func (r *RecordRepository) UserMovies(ctx context.Context, username string) ([]domain.Movie, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"username": username}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

func (r *RecordRepository) Upsert(ctx context.Context, username string, movie domain.Movie) error {
	if err := domain.ValidateID(movie.ID); err != nil {
		return err
	}
	now := r.now().UTC().UnixMilli()
	doc := toDoc(username, movie, now)

	filter := bson.M{"username": username, "movieId": movie.ID}
	update := bson.M{
		"$set": bson.M{
			"title":      doc.Title,
			"year":       doc.Year,
			"runtime":    doc.Runtime,
			"genre":      doc.Genre,
			"director":   doc.Director,
			"poster":     doc.Poster,
			"isFavorite": doc.IsFavorite,
			"updatedAt":  doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"createdAt": doc.CreatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Delete removes one record. Deleting a record that does not exist is not
// an error.
func (r *RecordRepository) Delete(ctx context.Context, username, movieID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"username": username, "movieId": movieID})
	return err
}

func toDoc(username string, movie domain.Movie, nowMillis int64) recordDoc {
	return recordDoc{
		Username:   strings.TrimSpace(username),
		MovieID:    movie.ID,
		Title:      movie.Title,
		Year:       movie.Year,
		Runtime:    movie.Runtime,
		Genre:      movie.Genre,
		Director:   movie.Director,
		Poster:     movie.Poster,
		IsFavorite: movie.IsFavorite,
		CreatedAt:  nowMillis,
		UpdatedAt:  nowMillis,
	}
}

func fromDoc(doc recordDoc) domain.Movie {
	return domain.Movie{
		ID:         doc.MovieID,
		Title:      doc.Title,
		Year:       doc.Year,
		Runtime:    doc.Runtime,
		Genre:      doc.Genre,
		Director:   doc.Director,
		Poster:     doc.Poster,
		IsFavorite: doc.IsFavorite,
	}
}

func fromDocs(docs []recordDoc) []domain.Movie {
	out := make([]domain.Movie, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDoc(doc))
	}
	return out
}
