package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/controllers"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/health"
	authService "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/auth"
	jwt "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	authMiddleware "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	container "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Container"
	mqtingestor "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/ingestor"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/resolver"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/supervisor"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	implementation "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

func main() {
	ctr, err := container.NewContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	m := ctr.GetMetrics()
	logger.Info("Starting temperature server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(initCtx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}

	userRepo := implementation.NewPostgresUserRepository(db)
	deviceRepo := implementation.NewPostgresDeviceRepository(db)
	temperatureRepo := implementation.NewPostgresTemperatureRepository(db)
	plantRepo := implementation.NewPostgresPlantRepository(db)
	sensorRepo := implementation.NewPostgresSensorRepository(db)
	readingRepo := implementation.NewPostgresSensorReadingRepository(db)

	var revocations interfaces.TokenRevocationRepository = implementation.NewMemoryTokenRepository()
	redisClient, err := ctr.GetRedis()
	if err != nil {
		logger.FatalWithError(err, "Failed to connect to Redis")
	}
	if redisClient != nil {
		revocations = implementation.NewRedisTokenRepository(redisClient)
	}

	jwtService := jwt.NewService(api_models.Config{
		SecretKey:            config.Auth.JWTSecretKey,
		AccessTokenDuration:  config.Auth.AccessTokenDuration,
		RefreshTokenDuration: config.Auth.RefreshTokenDuration,
		Issuer:               config.Auth.JWTIssuer,
	}, revocations)

	rbacService := rbac.NewService()
	authorizer := rbac.NewAuthorizer(rbacService)
	authMiddlewareInstance := authMiddleware.NewAuthMiddleware(jwtService, authorizer, authMiddleware.DefaultConfig())

	authServiceInstance := authService.NewAuthService(userRepo, jwtService, config.Auth.PasswordMinLength)
	userServiceInstance := authService.NewUserService(userRepo, rbacService)

	adminInitializer := authService.NewAdminInitializer(userRepo, logger, authService.AdminConfig{
		Username: config.Auth.Admin.Username,
		Email:    config.Auth.Admin.Email,
		Password: config.Auth.Admin.Password,
	})
	if err := adminInitializer.InitializeAdminUser(initCtx); err != nil {
		logger.FatalWithError(err, "Failed to initialize admin user")
	}

	// Ingestion pipeline
	decoder, err := mqtingestor.NewDecoder(config.Ingest.PayloadFormat, config.Ingest.TopicPrefix)
	if err != nil {
		logger.FatalWithError(err, "Invalid payload format")
	}
	ingestor := mqtingestor.New(decoder, resolver.New(deviceRepo), temperatureRepo, config.Ingest.StoreTimeout, logger, m)

	tlsConfig, err := health.BrokerTLSConfig(&config.MQTT)
	if err != nil {
		logger.FatalWithError(err, "Failed to build broker TLS config")
	}
	sup := supervisor.New(
		supervisor.ConfigFromMQTT(&config.MQTT, config.GetMQTTBrokerURL(), tlsConfig),
		func(ctx context.Context, topic string, payload []byte) {
			ingestor.Handle(ctx, mqtingestor.Message{Topic: topic, Payload: payload})
		},
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(m),
	)

	var sinkQueues []*mqtingestor.SinkQueue
	if config.MQTT.PublishErrors {
		ingestor.IgnoreTopicPrefix(config.MQTT.ErrorTopicPrefix)
		q := mqtingestor.NewSinkQueue("error_publisher", mqtingestor.NewErrorPublisher(sup, config.MQTT.ErrorTopicPrefix, logger), 0, logger, m)
		sinkQueues = append(sinkQueues, q)
		ingestor.AddRejectionSink(q)
	}

	mongoClient, err := ctr.GetMongo()
	if err != nil {
		// the archive is optional, ingestion goes on without it
		logger.ErrorWithError(err, "Rejection archive unavailable")
	}
	if mongoClient != nil {
		rejections := implementation.NewMongoRejectionRepository(health.RejectionCollection(mongoClient, &config.Mongo))
		q := mqtingestor.NewSinkQueue("archive", mqtingestor.NewArchiveSink(rejections, logger), 0, logger, m)
		sinkQueues = append(sinkQueues, q)
		ingestor.AddRejectionSink(q)
	}

	healthChecker, err := ctr.GetHealthChecker()
	if err != nil {
		logger.FatalWithError(err, "Failed to create health checker")
	}
	healthChecker.SetBrokerStatus(sup.IsConnected)

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := sup.Run(ctx); err != nil {
			logger.ErrorWithError(err, "Connection supervisor stopped")
		}
	}()

	// HTTP
	if config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(m.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}))

	secureCookies := gin.Mode() == gin.ReleaseMode
	controllers.NewAuthController(authServiceInstance, authMiddlewareInstance, logger, secureCookies).RegisterRoutes(router)
	controllers.NewUserController(userServiceInstance, authMiddlewareInstance).RegisterRoutes(router)
	controllers.NewDeviceController(deviceRepo, authorizer, logger, authMiddlewareInstance).RegisterRoutes(router)
	controllers.NewTemperatureController(deviceRepo, temperatureRepo, authorizer, logger, authMiddlewareInstance).RegisterRoutes(router)
	controllers.NewPlantController(plantRepo, sensorRepo, authorizer, logger, authMiddlewareInstance).RegisterRoutes(router)
	controllers.NewSensorController(plantRepo, sensorRepo, readingRepo, authorizer, logger, authMiddlewareInstance).RegisterRoutes(router)
	controllers.NewHealthController(healthChecker, m).RegisterRoutes(router)
	controllers.NewInternalController(ingestor, config.Server.InternalAPISecret).RegisterRoutes(router)

	port := config.Server.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("Temperature server running... press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
	workers.Wait()

	for _, q := range sinkQueues {
		if err := q.Close(shutdownCtx); err != nil {
			logger.ErrorWithError(err, "Rejection queue not drained")
		}
	}

	if err := ctr.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Container shutdown failed")
	}
}
