package main

import (
	"flag"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/storyloop/dailystories/engagement"
	"github.com/storyloop/dailystories/server"
	. "github.com/storyloop/dailystories/utils"
	"github.com/storyloop/dailystories/utils/dotenv"
	. "github.com/storyloop/dailystories/utils/flag"
	Logger "github.com/storyloop/dailystories/utils/log"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

func cleanup() {
	CloseProfiler()
	CloseTracer()
	Logger.Log.Info("api server shutdown")
}

func main() {
	defer cleanup()

	flag.Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	StartTracer()
	StartProfiler()

	db, err := GetDBConnection()
	if err != nil {
		Logger.Log.Fatal("cannot connect to database: ", err)
	}
	DatabaseSetupAndMigration(db)

	cache, err := GetCacheStore()
	if err != nil {
		// caching is a read accelerator, the API still works without it
		Logger.Log.Warn("cache unavailable, serving uncached: ", err)
		cache = nil
	}

	svc := engagement.NewService(db, cache, GetMetricsClient())

	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(gintrace.Middleware(ServiceName))

	server.NewServer(svc).RegisterRoutes(router)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	Logger.Log.Info("api server starts up")
	router.Run(":8080")
}
