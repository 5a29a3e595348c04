package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"doc-hand/config"
	"doc-hand/models"
	"doc-hand/services"
	"doc-hand/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	documentsProcessedCounter prometheus.Counter
	documentsFailedCounter    prometheus.Counter
	stuckDocumentsGauge       prometheus.Gauge
)

func init() {
	documentsProcessedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Total number of documents that reached the done status.",
		},
	)
	documentsFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_failed_total",
			Help: "Total number of document processing runs that ended in failure.",
		},
	)
	stuckDocumentsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "documents_stuck_processing",
			Help: "Documents sitting in the processing status beyond the configured threshold.",
		},
	)
	prometheus.MustRegister(documentsProcessedCounter, documentsFailedCounter, stuckDocumentsGauge)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to documents database", zap.Error(err))
	}
	logging.Info("Successfully connected to documents database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Document{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Object Store
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	objectStore := storage.NewObjectStore(s3Client, cfg.DocsS3Bucket)

	// Setup Pipeline
	documentStore := storage.NewDocumentStore(db)
	extractor := services.NewPDFExtractor(logging)
	aiExtractor := services.NewOpenAIExtractor(cfg, logging)
	processor := services.NewDocumentProcessor(documentStore, objectStore, extractor, aiExtractor, logging)

	// Setup Router
	router := gin.Default()
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "doc-hand"})
	})

	setupDocumentRoutes(router, db, logging)
	setupProcessingRoutes(router, processor, logging)

	// Setup Cron: watch for documents stuck in "processing". The pipeline
	// never auto-recovers them; this only makes the stuck state visible.
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		threshold := time.Now().Add(-time.Duration(cfg.StuckAfterMinutes) * time.Minute)
		var count int64
		if err := db.Model(&models.Document{}).
			Where("processing_status = ? AND updated_at < ?", models.StatusProcessing, threshold).
			Count(&count).Error; err != nil {
			logging.Error("Stuck document sweep failed", zap.Error(err))
			return
		}
		stuckDocumentsGauge.Set(float64(count))
		if count > 0 {
			logging.Warn("Documents stuck in processing", zap.Int64("count", count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupDocumentRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/documents")

	// POST - Register an uploaded document; processing starts separately.
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			FilePath     string              `json:"file_path"`
			DocumentType models.DocumentType `json:"document_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.DocumentType == "" {
			req.DocumentType = models.TypeOther
		}
		if !req.DocumentType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document_type"})
			return
		}

		doc := models.Document{
			ID:               uuid.New().String(),
			FilePath:         req.FilePath,
			DocumentType:     req.DocumentType,
			Authors:          models.StringList{},
			Keywords:         models.StringList{},
			ProcessingStatus: models.StatusPending,
		}
		if err := db.Create(&doc).Error; err != nil {
			log.Error("Failed to create document", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
			return
		}
		c.JSON(http.StatusCreated, doc)
	})

	// GET - All documents, without filters
	rg.GET("/", func(c *gin.Context) {
		var docs []models.Document
		if err := db.Order("created_at desc").Find(&docs).Error; err != nil {
			log.Error("Database query for all documents failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, docs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var doc models.Document
		if err := db.Where("id = ?", id).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			log.Error("DB error fetching document", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// POST - body-driven filter endpoint for more complex queries
	rg.POST("/query", func(c *gin.Context) {
		type DocumentQuery struct {
			DocumentType     string `json:"document_type"`
			ProcessingStatus string `json:"processing_status"`
			Limit            int    `json:"limit"`
		}

		var req DocumentQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Document{})
		if req.DocumentType != "" {
			query = query.Where("document_type = ?", req.DocumentType)
		}
		if req.ProcessingStatus != "" {
			query = query.Where("processing_status = ?", req.ProcessingStatus)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var docs []models.Document
		if err := query.Order("created_at desc").Find(&docs).Error; err != nil {
			log.Error("Database query for documents failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, docs)
	})
}

func setupProcessingRoutes(router *gin.Engine, processor *services.DocumentProcessor, log *zap.Logger) {
	rg := router.Group("/documents")

	// POST - Run the processing pipeline for one document.
	rg.POST("/process", func(c *gin.Context) {
		var req struct {
			DocumentID   string `json:"documentId" binding:"required"`
			ForceRefresh bool   `json:"forceRefresh"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "documentId is required"})
			return
		}

		doc, err := processor.Process(c.Request.Context(), req.DocumentID, req.ForceRefresh)
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			documentsFailedCounter.Inc()
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "document processing failed",
				"details": err.Error(),
			})
			return
		}

		documentsProcessedCounter.Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Document processed successfully",
			"data":    documentPayload(doc),
		})
	})

	// POST - Trigger processing of every pending document in the background.
	rg.POST("/process-pending", func(c *gin.Context) {
		go func() {
			processed, failed := processor.ProcessPending(context.Background())
			documentsProcessedCounter.Add(float64(processed))
			documentsFailedCounter.Add(float64(failed))
			log.Info("Async pending-document processing completed",
				zap.Int("processed", processed),
				zap.Int("failed", failed),
			)
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Processing of pending documents triggered."})
	})
}

func documentPayload(doc *models.Document) gin.H {
	return gin.H{
		"id":                doc.ID,
		"document_type":     doc.DocumentType,
		"extracted_title":   doc.ExtractedTitle,
		"keywords":          doc.Keywords,
		"authors":           doc.Authors,
		"processing_status": doc.ProcessingStatus,
		"error_details":     doc.ErrorDetails,
	}
}
