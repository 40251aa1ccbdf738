package database

import (
	"context"
	"time"

	"github.com/travigo/avlengine/pkg/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var MongoGlobalInstance *MongoInstance

const defaultMongoConnectionString = "mongodb://localhost:27017/"
const defaultMongoDatabase = "avlengine"

func Connect() error {
	env := util.GetEnvironmentVariables()

	connectionString := util.EnvOrDefault(env, "MONGODB_CONNECTION", defaultMongoConnectionString)
	dbName := util.EnvOrDefault(env, "MONGODB_DATABASE", defaultMongoDatabase)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return err
	}

	MongoGlobalInstance = &MongoInstance{
		Client:   client,
		Database: client.Database(dbName),
	}

	if err := client.Ping(ctx, nil); err != nil {
		return err
	}

	createIndexes()

	return nil
}

func IsConnected() bool {
	return MongoGlobalInstance != nil
}

func GetCollection(collectionName string) *mongo.Collection {
	return MongoGlobalInstance.Database.Collection(collectionName)
}

func Ping(ctx context.Context) error {
	return MongoGlobalInstance.Client.Ping(ctx, nil)
}
