package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
)

const assessmentCollection = "audio_records"

// assessmentDocument is the stored shape of model.Assessment.
type assessmentDocument struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty"`
	PatientID  string                 `bson:"patient_id"`
	AudioData  []float64              `bson:"audio_data"`
	RiskScore  float64                `bson:"risk_score"`
	Source     string                 `bson:"source"`
	Confidence *float64               `bson:"confidence,omitempty"`
	Analysis   model.AudioAnalysis    `bson:"analysis"`
	External   map[string]interface{} `bson:"ml_analysis,omitempty"`
	CreatedBy  string                 `bson:"created_by"`
	CreatedAt  time.Time              `bson:"created_at"`
}

func toDocument(a *model.Assessment) assessmentDocument {
	return assessmentDocument{
		PatientID:  a.PatientID.String(),
		AudioData:  a.Samples,
		RiskScore:  a.RiskScore,
		Source:     string(a.Source),
		Confidence: a.Confidence,
		Analysis:   a.Analysis,
		External:   a.External,
		CreatedBy:  a.CreatedBy.String(),
		CreatedAt:  a.CreatedAt,
	}
}

func (d assessmentDocument) toModel() (*model.Assessment, error) {
	patientID, err := uuid.Parse(d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("assessment %s: bad patient id: %w", d.ID.Hex(), err)
	}
	createdBy, err := uuid.Parse(d.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("assessment %s: bad creator id: %w", d.ID.Hex(), err)
	}
	return &model.Assessment{
		ID:         d.ID.Hex(),
		PatientID:  patientID,
		Samples:    d.AudioData,
		RiskScore:  d.RiskScore,
		Source:     model.ScoreSource(d.Source),
		Confidence: d.Confidence,
		Analysis:   d.Analysis,
		External:   d.External,
		CreatedBy:  createdBy,
		CreatedAt:  d.CreatedAt,
	}, nil
}

type assessmentRepository struct {
	coll *mongo.Collection
}

func NewAssessmentRepository(db *mongo.Database) repository.AssessmentRepository {
	return &assessmentRepository{coll: db.Collection(assessmentCollection)}
}

// EnsureIndexes creates the per-patient history index.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(assessmentCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("patient_history"),
	})
	if err != nil {
		return fmt.Errorf("failed to create assessment index: %w", err)
	}
	return nil
}

func (r *assessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	doc := toDocument(a)
	doc.ID = primitive.NewObjectID()

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	a.ID = doc.ID.Hex()
	return nil
}

func (r *assessmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Assessment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"patient_id": patientID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []assessmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode assessments: %w", err)
	}

	out := make([]*model.Assessment, 0, len(docs))
	for _, d := range docs {
		a, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *assessmentRepository) DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"patient_id": patientID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to delete assessments: %w", err)
	}
	return res.DeletedCount, nil
}
