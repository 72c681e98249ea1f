package api

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"portwatch/export"
	"portwatch/jobs"
)

const defaultHistoryLimit = 50

// @Summary      Start a port scan
// @Description  Validates the request, registers a scan job and starts probing in the background. The response is sent as soon as the job is running.
// @Description  Poll GET /scans/{id}/status with the returned id, or open the websocket stream, to follow progress.
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Param        scanRequest  body      StartScanRequest      true  "Scan parameters"
// @Success      202          {object}  ScanAcceptedResponse  "Scan started"
// @Failure      400          {object}  ErrorResponse         "Malformed JSON, empty target or invalid port expression"
// @Failure      429          {object}  ErrorResponse         "Rate limit exceeded"
// @Router       /scans [post]
func (s *Server) startScanHandler(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request payload: %v", err))
		return
	}

	id, err := s.jobs.Start(c.Request.Context(), jobs.StartRequest{
		Target:  req.Target,
		Ports:   req.Ports,
		Workers: req.Workers,
		Timeout: time.Duration(req.Timeout * float64(time.Second)),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ScanAcceptedResponse{ID: id, Status: string(jobs.StateRunning)})
}

// @Summary      List scans
// @Description  Summaries of every scan known to this process, newest first.
// @Tags         Scans
// @Produce      json
// @Success      200  {array}  jobs.Summary
// @Router       /scans [get]
func (s *Server) listScansHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.List())
}

// @Summary      Get scan details
// @Description  Full snapshot of a scan: target, resolved address, parameters, timing, complete log and open ports sorted by port.
// @Tags         Scans
// @Produce      json
// @Param        id   path      string  true  "Scan id"
// @Success      200  {object}  jobs.Details
// @Failure      404  {object}  ErrorResponse  "Unknown scan id"
// @Router       /scans/{id} [get]
func (s *Server) getScanHandler(c *gin.Context) {
	details, err := s.jobs.Details(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// @Summary      Poll scan status
// @Description  Returns the state, progress and the log entries appended since logs_index. Send the returned logs_index on the next poll to receive only new entries.
// @Description  Results are included once the scan reaches a terminal state.
// @Tags         Scans
// @Produce      json
// @Param        id          path      string  true   "Scan id"
// @Param        logs_index  query     int     false  "Index of the first log entry to return"
// @Success      200         {object}  jobs.StatusSnapshot
// @Failure      400         {object}  ErrorResponse  "logs_index is not an integer"
// @Failure      404         {object}  ErrorResponse  "Unknown scan id"
// @Router       /scans/{id}/status [get]
func (s *Server) scanStatusHandler(c *gin.Context) {
	since := 0
	if raw := c.Query("logs_index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "logs_index must be an integer")
			return
		}
		since = n
	}

	snapshot, err := s.jobs.Status(c.Param("id"), since)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// @Summary      Stop a scan
// @Description  Stops a pending or running scan. Stopping a finished scan changes nothing and reports its final state.
// @Tags         Scans
// @Produce      json
// @Param        id   path      string  true  "Scan id"
// @Success      200  {object}  StopScanResponse
// @Failure      404  {object}  ErrorResponse  "Unknown scan id"
// @Router       /scans/{id}/stop [post]
func (s *Server) stopScanHandler(c *gin.Context) {
	id := c.Param("id")
	state, err := s.jobs.Stop(id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, StopScanResponse{ID: id, Status: string(state)})
}

// @Summary      Export scan results
// @Description  Writes the open ports of a finished scan to a csv, xlsx, pdf or json file and records the export in the history.
// @Tags         Exports
// @Accept       json
// @Produce      json
// @Param        id             path      string             true  "Scan id"
// @Param        exportRequest  body      ExportScanRequest  true  "Format and optional filename"
// @Success      201            {object}  export.Artifact
// @Failure      400            {object}  ErrorResponse  "Unknown format or unusable filename"
// @Failure      404            {object}  ErrorResponse  "Unknown scan id"
// @Failure      409            {object}  ErrorResponse  "Scan still running"
// @Failure      422            {object}  ErrorResponse  "Scan found no open ports"
// @Failure      500            {object}  ErrorResponse  "Export file could not be written"
// @Security     CallerID
// @Router       /scans/{id}/export [post]
func (s *Server) exportScanHandler(c *gin.Context) {
	var req ExportScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request payload: %v", err))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	sealed, err := s.jobs.Results(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	artifact, err := s.exports.Export(c.Request.Context(), export.Request{
		JobID:      sealed.JobID,
		Host:       sealed.Target,
		Results:    sealed.Results,
		TotalPorts: sealed.TotalPorts,
		ScanDate:   sealed.EndedAt,
		Format:     format,
		Filename:   req.Filename,
	}, callerID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, artifact)
}

// @Summary      Export history
// @Description  Exports recorded for the calling identity, newest first. Anonymous callers see every export. Requires Redis.
// @Tags         Exports
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of records"  default(50)
// @Success      200    {object}  ExportHistoryResponse
// @Failure      501    {object}  ErrorResponse  "History storage disabled"
// @Security     CallerID
// @Router       /exports [get]
func (s *Server) listExportsHandler(c *gin.Context) {
	if s.history == nil {
		s.abortWithError(c, errHistoryDisabled)
		return
	}

	limit := int64(defaultHistoryLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(c.Request.Context(), callerID(c), limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExportHistoryResponse{Exports: records})
}

// @Summary      Download an export
// @Description  Streams a previously exported file as an attachment. Exports tagged with a caller id are only served to that caller.
// @Tags         Exports
// @Produce      octet-stream
// @Param        id   path      string  true  "Export id"
// @Success      200  {file}    file
// @Failure      403  {object}  ErrorResponse  "Export belongs to another caller"
// @Failure      404  {object}  ErrorResponse  "Unknown export or file removed"
// @Failure      501  {object}  ErrorResponse  "History storage disabled"
// @Security     CallerID
// @Router       /exports/{id}/download [get]
func (s *Server) downloadExportHandler(c *gin.Context) {
	if s.history == nil {
		s.abortWithError(c, errHistoryDisabled)
		return
	}

	rec, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if rec.CallerID != "" && rec.CallerID != callerID(c) {
		s.abortWithError(c, errForbidden)
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		s.abortWithError(c, fmt.Errorf("%w: %s", errArtifactMissing, filepath.Base(rec.FilePath)))
		return
	}

	c.Header("Content-Type", rec.Format.ContentType())
	c.FileAttachment(rec.FilePath, filepath.Base(rec.FilePath))
}

// @Summary      Dashboard
// @Description  Totals across every scan plus security recommendations derived from the findings.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  jobs.Dashboard
// @Router       /dashboard [get]
func (s *Server) dashboardHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.Dashboard())
}

// @Summary      Local IP address
// @Description  The address this host uses for outbound traffic, handy as a scan target.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  LocalIPResponse
// @Router       /local-ip [get]
func (s *Server) localIPHandler(c *gin.Context) {
	c.JSON(http.StatusOK, LocalIPResponse{IP: localIP()})
}

// healthHandler answers the liveness probe.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// localIP returns the source address of the default route. Dialing UDP sends
// no packets.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
