package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "upbitflow/config"
	"upbitflow/logger"
	"upbitflow/models"
)

// BookRow is one flattened order book level as persisted to parquet.
type BookRow struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	Level     int32   `parquet:"name=level, type=INT32"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// Recorder buffers watched order book snapshots per symbol, flattens them
// into parquet batches and uploads them to S3 on a flush interval.
type Recorder struct {
	config      *appconfig.Config
	books       <-chan *models.OrderBook
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.Mutex
	running     bool
	log         *logger.Log
	buffer      map[string][]BookRow
	flushTicker *time.Ticker
}

// NewRecorder builds a recorder consuming book snapshots from books.
func NewRecorder(cfg *appconfig.Config, books <-chan *models.OrderBook) (*Recorder, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("recorder").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	r := &Recorder{
		config:   cfg,
		books:    books,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("recorder").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("recorder initialized")

	return r, nil
}

// Start launches the buffering worker and the periodic flusher.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.buffer = make(map[string][]BookRow)
	r.mu.Unlock()

	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting recorder")

	r.flushTicker = time.NewTicker(r.config.Recorder.FlushInterval)

	r.wg.Add(2)
	go r.worker()
	go r.flushWorker()

	log.Info("recorder started successfully")
	return nil
}

// Stop waits for the workers to drain and flush.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	r.log.WithComponent("recorder").Info("stopping recorder")
	r.wg.Wait()
	r.log.WithComponent("recorder").Info("recorder stopped")
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"worker": "buffer"})
	log.Info("starting buffer worker")

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case book, ok := <-r.books:
			if !ok {
				log.Info("book channel closed, worker stopping")
				return
			}
			r.addBook(book)
		}
	}
}

func (r *Recorder) flushWorker() {
	defer r.wg.Done()

	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-r.ctx.Done():
			r.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-r.flushTicker.C:
			r.flushBuffers("interval")
		}
	}
}

func (r *Recorder) addBook(book *models.OrderBook) {
	rows := flattenBook(book)
	if len(rows) == 0 {
		return
	}

	r.mu.Lock()
	r.buffer[book.Symbol] = append(r.buffer[book.Symbol], rows...)
	full := len(r.buffer[book.Symbol]) >= r.config.Recorder.BatchSize
	r.mu.Unlock()

	if full {
		r.flushBuffers("batch_size")
	}
}

// flattenBook turns both ladders into rows, level index starting at 1 from
// the top of the book.
func flattenBook(book *models.OrderBook) []BookRow {
	rows := make([]BookRow, 0, len(book.Bids)+len(book.Asks))
	for i, level := range book.Bids {
		rows = append(rows, BookRow{
			Exchange:  "upbit",
			Symbol:    book.Symbol,
			Timestamp: book.Timestamp,
			Side:      "bid",
			Price:     level.Price,
			Quantity:  level.Quantity,
			Level:     int32(i + 1),
		})
	}
	for i, level := range book.Asks {
		rows = append(rows, BookRow{
			Exchange:  "upbit",
			Symbol:    book.Symbol,
			Timestamp: book.Timestamp,
			Side:      "ask",
			Price:     level.Price,
			Quantity:  level.Quantity,
			Level:     int32(i + 1),
		})
	}
	return rows
}

func (r *Recorder) flushBuffers(reason string) {
	r.mu.Lock()
	buffers := r.buffer
	r.buffer = make(map[string][]BookRow)
	r.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for symbol, rows := range buffers {
		if len(rows) == 0 {
			continue
		}
		r.processBatch(symbol, rows)
	}
}

func (r *Recorder) processBatch(symbol string, rows []BookRow) {
	batchID := uuid.New().String()
	now := time.Now().UTC()

	log := r.log.WithComponent("recorder").WithFields(logger.Fields{
		"batch_id":  batchID,
		"symbol":    symbol,
		"row_count": len(rows),
		"operation": "process_batch",
	})

	s3Key := r.generateS3Key(symbol, batchID, now)
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	parquetData, fileSize, err := r.createParquetFile(rows)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := r.uploadToS3(s3Key, parquetData); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": r.config.Storage.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementSnapshotWrite(fileSize)
	log.LogMetric("recorder", "snapshot_rows", len(rows), "counter", logger.Fields{"symbol": symbol})
	log.WithFields(logger.Fields{"file_size": fileSize}).Info("batch uploaded successfully")
}

func (r *Recorder) generateS3Key(symbol, batchID string, ts time.Time) string {
	// Symbols contain a slash; flatten it for the object key.
	flat := strings.ReplaceAll(symbol, "/", "-")

	key := filepath.Join(
		"exchange=upbit",
		fmt.Sprintf("symbol=%s", flat),
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", ts.Month()),
		fmt.Sprintf("day=%02d", ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("upbit_books_%s_%s_%s.parquet", flat, ts.Format("20060102150405"), batchID),
	)
	return filepath.ToSlash(key)
}

func (r *Recorder) createParquetFile(rows []BookRow) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(BookRow), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch r.config.Recorder.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

func (r *Recorder) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       r.config.Recorder.Compression,
			"upbitflow-version": r.config.Upbitflow.Version,
		},
	}

	ctx := context.WithoutCancel(r.ctx)
	if _, err := r.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", r.config.Storage.S3.Bucket, err)
	}
	return nil
}
