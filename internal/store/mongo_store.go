package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amble/internal/database"
	"amble/internal/models"
)

// MongoStore implements Store and JobState on MongoDB.
type MongoStore struct {
	db *database.MongoDB
}

// NewMongoStore wraps an initialized MongoDB connection.
func NewMongoStore(db *database.MongoDB) *MongoStore {
	return &MongoStore{db: db}
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Close(ctx)
}

func (s *MongoStore) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// rangeFilter builds a user-scoped filter plus find options for a Range on field.
func rangeFilter(userKey, field string, r Range) (bson.M, *options.FindOptions) {
	filter := bson.M{"userKey": userKey}
	bounds := bson.M{}
	if !r.Since.IsZero() {
		bounds["$gte"] = r.Since
	}
	if !r.Until.IsZero() {
		bounds["$lte"] = r.Until
	}
	if len(bounds) > 0 {
		filter[field] = bounds
	}

	opts := options.Find().SetSort(bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}})
	if r.Limit > 0 {
		opts.SetLimit(int64(r.Limit))
	}
	return filter, opts
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(t time.Time) time.Time {
	// BSON dates carry millisecond precision; truncate so reads match writes.
	return t.UTC().Truncate(time.Millisecond)
}

// --- profiles ---

func (s *MongoStore) GetProfile(ctx context.Context, userKey string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.col(database.CollectionProfiles).FindOne(ctx, bson.M{"_id": userKey}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	p.CreatedAt = normalize(p.CreatedAt)
	p.UpdatedAt = normalize(p.UpdatedAt)
	if p.Preferences == nil {
		p.Preferences = map[string]interface{}{}
	}

	update := bson.M{
		"$set": bson.M{
			"name":              p.Name,
			"age":               p.Age,
			"location":          p.Location,
			"timezone":          p.Timezone,
			"preferredLanguage": p.PreferredLanguage,
			"preferences":       p.Preferences,
			"updatedAt":         p.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": p.CreatedAt},
	}
	_, err := s.col(database.CollectionProfiles).UpdateOne(ctx, bson.M{"_id": p.UserKey}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateProfileFields(ctx context.Context, userKey string, u ProfileUpdate) (*models.UserProfile, error) {
	set := bson.M{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Age != nil {
		set["age"] = *u.Age
	}
	if u.Location != nil {
		set["location"] = *u.Location
	}
	if u.Timezone != nil {
		set["timezone"] = *u.Timezone
	}
	if u.PreferredLanguage != nil {
		set["preferredLanguage"] = *u.PreferredLanguage
	}
	for k, v := range u.Preferences {
		set["preferences."+k] = v
	}
	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set["updatedAt"] = normalize(updatedAt)

	var p models.UserProfile
	err := s.col(database.CollectionProfiles).FindOneAndUpdate(ctx, bson.M{"_id": userKey}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) ListUserKeys(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.col(database.CollectionProfiles).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var keys []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		keys = append(keys, doc.ID)
	}
	return keys, cursor.Err()
}

// --- entries ---

func (s *MongoStore) AddExpense(ctx context.Context, e *models.Expense) error {
	e.CreatedAt = normalize(e.CreatedAt)
	if _, err := s.col(database.CollectionExpenses).InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to add expense: %w", err)
	}
	return nil
}

func (s *MongoStore) ListExpenses(ctx context.Context, userKey string, r Range) ([]models.Expense, error) {
	filter, opts := rangeFilter(userKey, "createdAt", r)
	out, err := findAll[models.Expense](ctx, s.col(database.CollectionExpenses), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return out, nil
}

func (s *MongoStore) AddMood(ctx context.Context, m *models.MoodEntry) error {
	m.CreatedAt = normalize(m.CreatedAt)
	if _, err := s.col(database.CollectionMoods).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("failed to add mood: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMoods(ctx context.Context, userKey string, r Range) ([]models.MoodEntry, error) {
	filter, opts := rangeFilter(userKey, "createdAt", r)
	out, err := findAll[models.MoodEntry](ctx, s.col(database.CollectionMoods), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list moods: %w", err)
	}
	return out, nil
}

func (s *MongoStore) AddActivity(ctx context.Context, a *models.Activity) error {
	a.CreatedAt = normalize(a.CreatedAt)
	if _, err := s.col(database.CollectionActivities).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	return nil
}

func (s *MongoStore) ListActivities(ctx context.Context, userKey string, r Range) ([]models.Activity, error) {
	filter, opts := rangeFilter(userKey, "createdAt", r)
	out, err := findAll[models.Activity](ctx, s.col(database.CollectionActivities), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return out, nil
}

// --- appointments ---

func (s *MongoStore) AddAppointment(ctx context.Context, a *models.Appointment) error {
	if a.Status == "" {
		a.Status = models.AppointmentScheduled
	}
	a.DateTime = normalize(a.DateTime)
	a.CreatedAt = normalize(a.CreatedAt)
	if _, err := s.col(database.CollectionAppointments).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to add appointment: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAppointment(ctx context.Context, userKey, id string) (*models.Appointment, error) {
	var a models.Appointment
	err := s.col(database.CollectionAppointments).FindOne(ctx, bson.M{"_id": id, "userKey": userKey}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &a, nil
}

func (s *MongoStore) ListAppointments(ctx context.Context, userKey string, f AppointmentFilter) ([]models.Appointment, error) {
	filter := bson.M{"userKey": userKey}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	bounds := bson.M{}
	if !f.From.IsZero() {
		bounds["$gte"] = f.From
	}
	if !f.To.IsZero() {
		bounds["$lte"] = f.To
	}
	if len(bounds) > 0 {
		filter["dateTime"] = bounds
	}

	sort := bson.D{{Key: "dateTime", Value: 1}, {Key: "_id", Value: 1}}
	if f.Newest {
		sort = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
	opts := options.Find().SetSort(sort)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	out, err := findAll[models.Appointment](ctx, s.col(database.CollectionAppointments), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return out, nil
}

func (s *MongoStore) CancelAppointment(ctx context.Context, userKey, id string) (bool, error) {
	res, err := s.col(database.CollectionAppointments).UpdateOne(ctx,
		bson.M{"_id": id, "userKey": userKey, "status": models.AppointmentScheduled},
		bson.M{"$set": bson.M{"status": models.AppointmentCancelled}})
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	if _, err := s.GetAppointment(ctx, userKey, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *MongoStore) ClaimReminder(ctx context.Context, userKey, id string) (bool, error) {
	res, err := s.col(database.CollectionAppointments).UpdateOne(ctx,
		bson.M{"_id": id, "userKey": userKey, "reminded": false, "status": models.AppointmentScheduled},
		bson.M{"$set": bson.M{"reminded": true}})
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// --- alerts ---

func (s *MongoStore) AddAlert(ctx context.Context, a *models.Alert) error {
	a.CreatedAt = normalize(a.CreatedAt)
	if _, err := s.col(database.CollectionAlerts).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to add alert: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAlerts(ctx context.Context, userKey string, r Range) ([]models.Alert, error) {
	filter, opts := rangeFilter(userKey, "createdAt", r)
	out, err := findAll[models.Alert](ctx, s.col(database.CollectionAlerts), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return out, nil
}

func (s *MongoStore) MarkAlertRead(ctx context.Context, userKey, id string) error {
	res, err := s.col(database.CollectionAlerts).UpdateOne(ctx,
		bson.M{"_id": id, "userKey": userKey}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- facts ---

func (s *MongoStore) AddFact(ctx context.Context, f *models.Fact) error {
	f.CreatedAt = normalize(f.CreatedAt)
	if _, err := s.col(database.CollectionFacts).InsertOne(ctx, f); err != nil {
		return fmt.Errorf("failed to add fact: %w", err)
	}
	return nil
}

func (s *MongoStore) SearchFacts(ctx context.Context, userKey string, q FactQuery) ([]models.Fact, error) {
	filter := bson.M{"userKey": userKey}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if len(q.Terms) > 0 {
		ors := make(bson.A, 0, len(q.Terms))
		for _, term := range q.Terms {
			ors = append(ors, bson.M{"fact": bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}})
		}
		filter["$or"] = ors
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	out, err := findAll[models.Fact](ctx, s.col(database.CollectionFacts), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search facts: %w", err)
	}
	return out, nil
}

// --- transcripts ---

func (s *MongoStore) AddTurn(ctx context.Context, t *models.TurnRecord) error {
	t.CreatedAt = normalize(t.CreatedAt)
	if _, err := s.col(database.CollectionTranscripts).InsertOne(ctx, t); err != nil {
		return fmt.Errorf("failed to add transcript: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTurns(ctx context.Context, userKey string, r Range) ([]models.TurnRecord, error) {
	filter, opts := rangeFilter(userKey, "createdAt", r)
	out, err := findAll[models.TurnRecord](ctx, s.col(database.CollectionTranscripts), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return out, nil
}

// --- job state ---

type jobRunDoc struct {
	Job     string    `bson:"job"`
	UserKey string    `bson:"userKey"`
	LastRun time.Time `bson:"lastRun"`
}

func (s *MongoStore) LastRun(ctx context.Context, job, userKey string) (time.Time, bool, error) {
	var doc jobRunDoc
	err := s.col(database.CollectionJobRuns).FindOne(ctx, bson.M{"job": job, "userKey": userKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read job state: %w", err)
	}
	return doc.LastRun.UTC(), true, nil
}

func (s *MongoStore) SetLastRun(ctx context.Context, job, userKey string, at time.Time) error {
	_, err := s.col(database.CollectionJobRuns).UpdateOne(ctx,
		bson.M{"job": job, "userKey": userKey},
		bson.M{"$set": bson.M{"lastRun": normalize(at)}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write job state: %w", err)
	}
	return nil
}

var (
	_ Store    = (*MongoStore)(nil)
	_ JobState = (*MongoStore)(nil)
)
