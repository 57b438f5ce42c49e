// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultEngineEventBuffer is the capacity of the engine event stream.
	DefaultEngineEventBuffer = 256
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespQueryParamMissing is returned when a required query parameter is missing or invalid.
	RespQueryParamMissing = "query param missing or invalid"
	// RespUnprocessableEntity is returned when the request cannot be processed.
	RespUnprocessableEntity = "unprocessable entity"
	// RespDownloadStarted is returned when a download is accepted.
	RespDownloadStarted = "download started"
	// RespDownloadStartFail is returned when a download cannot be started.
	RespDownloadStartFail = "download start failed"
	// RespDownloadRetrieved is returned when a download is successfully retrieved.
	RespDownloadRetrieved = "download retrieved"
	// RespDownloadsRetrieved is returned when downloads are successfully retrieved.
	RespDownloadsRetrieved = "downloads retrieved"
	// RespDownloadNotFound is returned when a download is not found.
	RespDownloadNotFound = "download not found"
	// RespDownloadRetried is returned when a failed download is retried.
	RespDownloadRetried = "download retried"
	// RespRetryFail is returned when a retry request cannot be honored.
	RespRetryFail = "download retry failed"
	// RespDownloadCancelled is returned when an active download is cancelled.
	RespDownloadCancelled = "download cancelled"
	// RespCancelFail is returned when a cancel request cannot be honored.
	RespCancelFail = "download cancel failed"
	// RespDownloadDeleted is returned when a download is deleted.
	RespDownloadDeleted = "download deleted"
	// RespCompletedCleared is returned when completed records are cleared.
	RespCompletedCleared = "completed downloads cleared"
	// RespSettingsUpdated is returned when a runtime setting is applied.
	RespSettingsUpdated = "settings updated"
	// RespStatsRetrieved is returned when queue statistics are retrieved.
	RespStatsRetrieved = "stats retrieved"
	// RespInfoRetrieved is returned when video info is resolved.
	RespInfoRetrieved = "video info retrieved"
	// RespInfoFail is returned when video info cannot be resolved.
	RespInfoFail = "video info fetch failed"
)
