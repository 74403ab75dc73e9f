package mobile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	installed map[string]string // package -> version
	launched  []string
	opened    []string
	canOpen   bool
	panics    bool
}

func (p *fakePlatform) IsPackageInstalled(pkg string) bool {
	if p.panics {
		panic("PackageManager died")
	}
	_, ok := p.installed[pkg]
	return ok
}

func (p *fakePlatform) PackageVersion(pkg string) string {
	return p.installed[pkg]
}

func (p *fakePlatform) LaunchPackage(pkg string) bool {
	if _, ok := p.installed[pkg]; !ok {
		return false
	}
	p.launched = append(p.launched, pkg)
	return true
}

func (p *fakePlatform) OpenURI(uri string) bool {
	if !p.canOpen {
		return false
	}
	p.opened = append(p.opened, uri)
	return true
}

func decodeMap(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)
	return m
}

func TestNewBridgeRequiresPlatform(t *testing.T) {
	_, err := NewBridge(nil, 1, false)
	assert.Error(t, err)
}

func TestNativeBridgeInstalled(t *testing.T) {
	p := &fakePlatform{installed: map[string]string{"com.huawei.health": "14.0.0"}}
	b, err := NewBridge(p, 1, false)
	require.NoError(t, err)

	st := decodeMap(t, b.CheckAppStatus())
	assert.Equal(t, true, st["isInstalled"])
	assert.Equal(t, "14.0.0", st["version"])

	auth := decodeMap(t, b.RequestAuthorization(`["https://www.huawei.com/healthkit/step.read"]`))
	assert.Equal(t, true, auth["success"])

	open := decodeMap(t, b.OpenApp())
	assert.Equal(t, true, open["success"])
	assert.Equal(t, []string{"com.huawei.health"}, p.launched)
}

func TestNativeBridgeVersionUnknown(t *testing.T) {
	p := &fakePlatform{installed: map[string]string{"com.huawei.health": ""}}
	b, err := NewBridge(p, 1, false)
	require.NoError(t, err)

	st := decodeMap(t, b.CheckAppStatus())
	assert.Equal(t, "unknown", st["version"])
}

func TestNativeBridgeAbsent(t *testing.T) {
	p := &fakePlatform{installed: map[string]string{}, canOpen: true}
	b, err := NewBridge(p, 1, false)
	require.NoError(t, err)

	st := decodeMap(t, b.CheckAppStatus())
	assert.Equal(t, false, st["isInstalled"])
	assert.Contains(t, st, "version")
	assert.Nil(t, st["version"])

	auth := decodeMap(t, b.RequestAuthorization(""))
	assert.Equal(t, false, auth["success"])
	assert.Equal(t, "install_app", auth["action"])

	open := decodeMap(t, b.OpenApp())
	assert.Equal(t, true, open["success"])
	assert.Equal(t, []string{"appmarket://details?id=com.huawei.health"}, p.opened)

	p.canOpen = false
	open = decodeMap(t, b.OpenApp())
	assert.Equal(t, false, open["success"])
}

func TestNativePanicBecomesFailure(t *testing.T) {
	b, err := NewBridge(&fakePlatform{panics: true}, 1, false)
	require.NoError(t, err)

	auth := decodeMap(t, b.RequestAuthorization(""))
	assert.Equal(t, false, auth["success"])
	assert.Contains(t, auth["error"], "PackageManager died")
}

func TestReadData(t *testing.T) {
	b, err := NewSimulatedBridge("default", 3, false)
	require.NoError(t, err)

	res := decodeMap(t, b.ReadData(`{"dataType":"heartrate","startTime":0}`))
	assert.Equal(t, true, res["success"])
	assert.Len(t, res["data"], 5)

	res = decodeMap(t, b.ReadData(`{"dataType":"weight"}`))
	assert.Equal(t, true, res["success"])
	assert.Empty(t, res["data"])

	res = decodeMap(t, b.ReadData(`{"dataType":`))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "invalid_request", res["errorCode"])

	res = decodeMap(t, b.ReadData(`{"dataType":"steps","limit":0}`))
	assert.Equal(t, false, res["success"])
}

func TestRequestAuthorizationBadJSON(t *testing.T) {
	b, err := NewSimulatedBridge("default", 3, false)
	require.NoError(t, err)

	res := decodeMap(t, b.RequestAuthorization(`{"not":"a list"}`))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "invalid_request", res["errorCode"])
}

func TestSimulatedBridgeUnknownProfile(t *testing.T) {
	_, err := NewSimulatedBridge("phablet", 1, false)
	assert.Error(t, err)
}

func TestHealthSummary(t *testing.T) {
	b, err := NewSimulatedBridge("default", 3, false)
	require.NoError(t, err)

	sum := decodeMap(t, b.HealthSummary())
	assert.Equal(t, "Huawei Health Kit", sum["source"])
	data, ok := sum["data"].(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, data["sleep"])
	assert.Nil(t, data["battery"])
}

func TestExportInstructions(t *testing.T) {
	b, err := NewSimulatedBridge("", 3, false)
	require.NoError(t, err)

	ins := decodeMap(t, b.ExportInstructions())
	assert.Len(t, ins["steps"], 7)
}

func TestTimeout(t *testing.T) {
	b, err := NewSimulatedBridge("default", 3, false)
	require.NoError(t, err)
	b.SetTimeoutMillis(0)

	st := decodeMap(t, b.CheckAppStatus())
	assert.Equal(t, true, st["isInstalled"])
}
