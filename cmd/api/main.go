package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/handlers"
)

func setupRouter(cfg handlers.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.Register(r, cfg)
	return r
}

func main() {
	// Local development reads config from .env; in Lambda the variables
	// come from the function configuration.
	_ = godotenv.Load()

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := handlers.Config{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		S3Client:         clients.S3,
		SubmissionsTable: os.Getenv("SUBMISSIONS_TABLE"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		AddressesTable:   os.Getenv("ADDRESSES_TABLE"),
		WishlistTable:    os.Getenv("WISHLIST_TABLE"),
		CustomersTable:   os.Getenv("CUSTOMERS_TABLE"),
		QueueURL:         os.Getenv("ORDERS_QUEUE_URL"),
		AvatarBucket:     os.Getenv("AVATAR_BUCKET"),
		AvatarBaseURL:    os.Getenv("AVATAR_BASE_URL"),
		TTLWindow:        48 * time.Hour,
	}

	r := setupRouter(cfg)

	// RUN_LOCAL=true serves plain HTTP for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
