package settings

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"overlaysync/internal/domain"
)

const settingsID = "overlay"

type settingsDoc struct {
	ID             string   `bson:"_id"`
	Enable         bool     `bson:"enable"`
	Opacity        int      `bson:"opacity"`
	LowPerformance bool     `bson:"lowPerformance"`
	StrictMatch    bool     `bson:"strictMatch"`
	SzbhMethod     bool     `bson:"szbhMethod"`
	UseNGList      bool     `bson:"useNgList"`
	NGWords        []string `bson:"ngWords,omitempty"`
	NGUserIDs      []string `bson:"ngUserIds,omitempty"`
	ShowChangelog  bool     `bson:"showChangelog"`
	UpdatedAt      int64    `bson:"updatedAt"`
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{collection: client.Database(dbName).Collection("settings")}
}

// Connect opens a client for uri. extra options are applied after the URI.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	return mongo.Connect(ctx, opts...)
}

func (r *MongoStore) Load(ctx context.Context) (domain.Settings, bool, error) {
	var doc settingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": settingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Settings{}, false, nil
		}
		return domain.Settings{}, false, err
	}
	return fromDoc(doc), true, nil
}

func (r *MongoStore) Save(ctx context.Context, s domain.Settings) error {
	doc := toDoc(s)
	update := bson.M{
		"$set": bson.M{
			"enable":         doc.Enable,
			"opacity":        doc.Opacity,
			"lowPerformance": doc.LowPerformance,
			"strictMatch":    doc.StrictMatch,
			"szbhMethod":     doc.SzbhMethod,
			"useNgList":      doc.UseNGList,
			"ngWords":        doc.NGWords,
			"ngUserIds":      doc.NGUserIDs,
			"showChangelog":  doc.ShowChangelog,
			"updatedAt":      time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": settingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func toDoc(s domain.Settings) settingsDoc {
	return settingsDoc{
		ID:             settingsID,
		Enable:         s.Enable,
		Opacity:        s.Opacity,
		LowPerformance: s.LowPerformance,
		StrictMatch:    s.StrictMatch,
		SzbhMethod:     s.SzbhMethod,
		UseNGList:      s.UseNGList,
		NGWords:        s.NGList.Words,
		NGUserIDs:      s.NGList.UserIDs,
		ShowChangelog:  s.ShowChangelog,
	}
}

func fromDoc(doc settingsDoc) domain.Settings {
	return domain.Settings{
		Enable:         doc.Enable,
		Opacity:        doc.Opacity,
		LowPerformance: doc.LowPerformance,
		StrictMatch:    doc.StrictMatch,
		SzbhMethod:     doc.SzbhMethod,
		UseNGList:      doc.UseNGList,
		NGList:         domain.NGList{Words: doc.NGWords, UserIDs: doc.NGUserIDs},
		ShowChangelog:  doc.ShowChangelog,
	}
}
