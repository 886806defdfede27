package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFileDataCollector struct {
	fileName string
	file     *os.File
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		file:     logFile,
		logger:   zap.New(core),
	}, nil
}

func jobFields(job map[string]any) []zap.Field {
	return []zap.Field{
		zap.Any("jobId", job["job_id"]),
		zap.Any("projectId", job["project_id"]),
		zap.Any("moduleId", job["module_id"]),
		zap.Any("operation", job["operation"]),
		zap.Any("retryCount", job["retry_count"]),
	}
}

func (lc *LogFileDataCollector) RecordJobSuccess(job map[string]any) {
	lc.logger.Info("success", jobFields(job)...)
}

func (lc *LogFileDataCollector) RecordJobFailure(job map[string]any, reason string) {
	lc.logger.Info("failure", append(jobFields(job), zap.String("reason", reason))...)
}

func (lc *LogFileDataCollector) RecordJobCanceled(job map[string]any) {
	lc.logger.Info("canceled", jobFields(job)...)
}

func (lc *LogFileDataCollector) Close() error {
	_ = lc.logger.Sync()
	return lc.file.Close()
}
