// Package executor holds the stage executors the pipeline delegates to.
package executor

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// RemoteStages run on the external worker service.
var RemoteStages = []models.ScanStatus{
	models.StatusScanningNamespaces,
	models.StatusParsingFiles,
	models.StatusGeneratingGraph,
	models.StatusIndexing,
}

// NewExecutors wires an executor for every pipeline stage.
func NewExecutors(cfg *config.Config, objects ObjectStore, httpClient *http.Client, logger *logrus.Logger) pipeline.Executors {
	executors := pipeline.Executors{
		models.StatusCloning:        NewCloneExecutor(logger),
		models.StatusUploadingToFTP: NewUploadExecutor(objects, &cfg.ObjectStore, logger),
	}
	for _, stage := range RemoteStages {
		executors[stage] = NewRemoteJobExecutor(stage, &cfg.Worker, httpClient, logger)
	}
	return executors
}
