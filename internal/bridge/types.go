package bridge

import "github.com/wondertwin-ai/healthbridge/internal/provider"

// Action hints returned to the host alongside failures.
const ActionInstallApp = "install_app"

// Error codes carried by failure envelopes.
const (
	CodeNotAuthorized   = "not_authorized"
	CodeUnsupportedKind = "unsupported_data_type"
	CodeInvalidRequest  = "invalid_request"
	CodeInternal        = "internal"
)

// Envelope is the result of every bridge operation. Failures set Success to
// false and carry Error; they are never returned as Go errors.
type Envelope struct {
	Success   bool   `json:"success" jsonschema:"required"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Action    string `json:"action,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ReadOptions is a read request as the host sends it. Nil fields take
// defaults: startTime 0, endTime now, limit 100.
type ReadOptions struct {
	DataType  string `json:"dataType"`
	StartTime *int64 `json:"startTime,omitempty"`
	EndTime   *int64 `json:"endTime,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

// ReadResult is the result of ReadData. The request fields are echoed
// after defaults are applied; Data is empty, never null, on success.
type ReadResult struct {
	Envelope
	DataType  string            `json:"dataType" jsonschema:"required"`
	StartTime int64             `json:"startTime" jsonschema:"required"`
	EndTime   int64             `json:"endTime" jsonschema:"required"`
	Data      []provider.Sample `json:"data" jsonschema:"required,nullable"`
}

// AppStatus describes the companion app on the device. Version is null
// when the app is absent.
type AppStatus struct {
	IsInstalled bool    `json:"isInstalled" jsonschema:"required"`
	IsSupported bool    `json:"isSupported" jsonschema:"required"`
	Version     *string `json:"version" jsonschema:"required,nullable"`
	Error       string  `json:"error,omitempty"`
}

// DefaultScopes are requested when the host passes none.
var DefaultScopes = []string{
	"https://www.huawei.com/healthkit/heartrate.read",
	"https://www.huawei.com/healthkit/step.read",
	"https://www.huawei.com/healthkit/activity.read",
	"https://www.huawei.com/healthkit/sleep.read",
	"https://www.huawei.com/healthkit/bodyweight.read",
}

// Companion identifies the health app the bridge fronts and the store that
// distributes it.
type Companion struct {
	Package   string `json:"package" mapstructure:"package"`
	Name      string `json:"name" mapstructure:"name"`
	StoreURI  string `json:"storeUri" mapstructure:"store_uri"`
	StoreName string `json:"storeName" mapstructure:"store_name"`
}

// DefaultCompanion is Huawei Health distributed through AppGallery.
func DefaultCompanion() Companion {
	return Companion{
		Package:   "com.huawei.health",
		Name:      "Huawei Health",
		StoreURI:  "appmarket://details?id=com.huawei.health",
		StoreName: "AppGallery",
	}
}

func (c Companion) withDefaults() Companion {
	d := DefaultCompanion()
	if c.Package == "" {
		c.Package = d.Package
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.StoreName == "" {
		c.StoreName = d.StoreName
	}
	if c.StoreURI == "" {
		c.StoreURI = "appmarket://details?id=" + c.Package
	}
	return c
}
