package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	VehicleEventsCollection     = "vehicle_events"
	MatchesCollection           = "matches"
	PredictionsCollection       = "predictions"
	ArrivalsDeparturesCollection = "arrivals_departures"
)

func createIndexes() {
	createCollectionIndexes(VehicleEventsCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vehicleid", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	})

	// Matches and predictions are only useful for a short while
	createCollectionIndexes(MatchesCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vehicleid", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "time", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(7 * 24 * 3600)},
	})
	createCollectionIndexes(PredictionsCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "stopid", Value: 1}}},
		{Keys: bson.D{{Key: "createdtime", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(24 * 3600)},
	})

	createCollectionIndexes(ArrivalsDeparturesCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tripid", Value: 1}, {Key: "stoppathindex", Value: 1}, {Key: "servicedate", Value: -1}}},
		{Keys: bson.D{{Key: "stopid", Value: 1}, {Key: "time", Value: -1}}},
	})
}

func createCollectionIndexes(name string, indexes []mongo.IndexModel) {
	collection := GetCollection(name)

	opts := options.CreateIndexes()
	_, err := collection.Indexes().CreateMany(context.Background(), indexes, opts)
	if err != nil {
		log.Error().Err(err).Str("collection", name).Msg("Creating Index")
	}
}
