package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/service"
)

// Pinger reports broker liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	jobSvc    *service.JobService
	exportSvc *service.ExportService
	resultSvc *service.ResultService

	broker       Pinger
	gpuAvailable bool
	log          *zap.Logger
}

func NewHandler(
	jobSvc *service.JobService,
	exportSvc *service.ExportService,
	resultSvc *service.ResultService,
	broker Pinger,
	gpuAvailable bool,
	log *zap.Logger,
) *Handler {
	return &Handler{
		jobSvc:       jobSvc,
		exportSvc:    exportSvc,
		resultSvc:    resultSvc,
		broker:       broker,
		gpuAvailable: gpuAvailable,
		log:          log,
	}
}

func jobIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type uploadResp struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type statusResp struct {
	Status       entity.JobStatus `json:"status"`
	Stage        entity.Stage     `json:"stage,omitempty"`
	Progress     int              `json:"progress"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

type resultResp struct {
	JobID        string              `json:"job_id"`
	Status       entity.JobStatus    `json:"status"`
	Artifacts    map[string]string   `json:"artifacts"`
	Dimensions   *entity.Dimensions  `json:"dimensions,omitempty"`
	UserScale    entity.ScaleFactors `json:"user_scale"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	Downloads    map[string]string   `json:"downloads,omitempty"`
}

// Upload godoc
// @Summary Upload an image and start the pipeline
// @Description Validates the image, creates the job (status=uploaded) and enqueues the first stage.
// @Tags jobs
// @Accept mpfd
// @Produce json
// @Param image formData file true "source image (png/jpg/jpeg/webp, max 16MB)"
// @Param remove_bg formData bool false "remove background before reconstruction"
// @Param enhanced_detail formData bool false "higher-resolution reconstruction"
// @Success 201 {object} uploadResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "no image file provided")
		return
	}
	defer file.Close()

	opts := entity.UploadOptions{
		RemoveBackground: parseBool(r.FormValue("remove_bg")),
		EnhancedDetail:   parseBool(r.FormValue("enhanced_detail")),
	}

	id, err := h.jobSvc.CreateFromUpload(r.Context(), header.Filename, file, opts)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResp{
		JobID:  id.String(),
		Status: string(entity.StatusUploaded),
	})
}

// GetStatus godoc
// @Summary Poll job status
// @Description Safe at high poll frequency: a pure read of the job record.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} statusResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /job/{id} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResp{
		Status:       j.Status,
		Stage:        j.Stage,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
	})
}

// GetResult godoc
// @Summary Get job result
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} resultResp
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /result/{id} [get]
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if !j.Status.Terminal() {
		writeErr(w, http.StatusConflict, "job not finished")
		return
	}

	resp := resultResp{
		JobID:        j.ID.String(),
		Status:       j.Status,
		Artifacts:    j.Artifacts,
		Dimensions:   j.Dimensions,
		UserScale:    j.UserScale,
		ErrorMessage: j.ErrorMessage,
	}
	if j.Status == entity.StatusDone {
		resp.Downloads = map[string]string{
			"stl": fmt.Sprintf("/download/%s/stl", j.ID),
			"obj": fmt.Sprintf("/download/%s/obj", j.ID),
			"glb": fmt.Sprintf("/download/%s/glb", j.ID),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateDimensionDTO struct {
	Dimensions service.TargetDimensions `json:"dimensions"`
}

// ValidateDimension godoc
// @Summary Validate requested absolute dimensions
// @Description Pure check against base dimensions and printability bounds; no mutation.
// @Tags dimension
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body validateDimensionDTO true "target dimensions in mm"
// @Success 200 {object} service.ScaleValidation
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /dimension/validate/{id} [post]
func (h *Handler) ValidateDimension(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	var dto validateDimensionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.exportSvc.ValidateScale(r.Context(), id, dto.Dimensions)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type updateDimensionDTO struct {
	Scale entity.ScaleFactors `json:"scale"`
}

type updateDimensionResp struct {
	DownloadURL      string              `json:"download_url"`
	Scale            entity.ScaleFactors `json:"scale"`
	ScaledDimensions entity.Dimensions   `json:"scaled_dimensions"`
}

// UpdateDimension godoc
// @Summary Export the mesh at a per-axis scale
// @Description Writes scaled STL/OBJ artifacts and records user_scale. Base dimensions are never modified.
// @Tags dimension
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body updateDimensionDTO true "per-axis scale factors"
// @Success 200 {object} updateDimensionResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /dimension/update/{id} [post]
func (h *Handler) UpdateDimension(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	var dto updateDimensionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.exportSvc.ExportScaled(r.Context(), id, dto.Scale)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateDimensionResp{
		DownloadURL:      fmt.Sprintf("/download/%s/stl_scaled", id),
		Scale:            result.Scale,
		ScaledDimensions: result.ScaledDimensions,
	})
}

// Download godoc
// @Summary Download a generated file
// @Tags files
// @Produce octet-stream
// @Param id path string true "job id (uuid)"
// @Param format path string true "stl | obj | glb | stl_scaled | obj_scaled"
// @Success 200 {file} binary
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /download/{id}/{format} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	format := chi.URLParam(r, "format")

	dl, err := h.resultSvc.OpenDownload(r.Context(), id, format)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.log.Warn("download stream aborted",
			zap.String("job_id", id.String()), zap.Error(err))
	}
}

type healthResp struct {
	Status          string `json:"status"`
	BrokerConnected bool   `json:"broker_connected"`
	GPUAvailable    bool   `json:"gpu_available"`
}

// Health godoc
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} healthResp
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	brokerOK := h.broker.Ping(r.Context()) == nil

	status := "healthy"
	if !brokerOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResp{
		Status:          status,
		BrokerConnected: brokerOK,
		GPUAvailable:    h.gpuAvailable,
	})
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
