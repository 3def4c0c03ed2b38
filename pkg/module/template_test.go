package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

func TestExpandPlaceholder(t *testing.T) {
	params := map[string]interface{}{
		"name":    "star-atlas",
		"version": "2.4.1",
	}

	result, replaced := ExpandPlaceholder("https://modules.example.com/${name}/${version}/${name}.pkg", params)
	assert.True(t, replaced)
	assert.Equal(t, "https://modules.example.com/star-atlas/2.4.1/star-atlas.pkg", result)

	// 无占位符时原样返回
	result, replaced = ExpandPlaceholder("https://modules.example.com/fixed.pkg", params)
	assert.False(t, replaced)
	assert.Equal(t, "https://modules.example.com/fixed.pkg", result)

	// 未知占位符保留原文
	result, replaced = ExpandPlaceholder("${unknown}", params)
	assert.False(t, replaced)
	assert.Equal(t, "${unknown}", result)
}

func TestExpandPlaceholdersInMap(t *testing.T) {
	params := map[string]interface{}{
		"name":    "comet-tracker",
		"version": "1.8.0",
	}

	values := map[string]interface{}{
		"data_dir": "/var/lib/${name}",
		"label":    "${name}-${version}",
		"count":    3, // 非字符串值不处理
	}
	unreplaced, err := ExpandPlaceholdersInMap(values, params)
	require.NoError(t, err)
	assert.Empty(t, unreplaced)
	assert.Equal(t, "/var/lib/comet-tracker", values["data_dir"])
	assert.Equal(t, "comet-tracker-1.8.0", values["label"])
	assert.Equal(t, 3, values["count"])
}

func TestExpandPlaceholdersInMapUnknown(t *testing.T) {
	values := map[string]interface{}{
		"path": "/opt/${missing}/bin",
	}
	unreplaced, err := ExpandPlaceholdersInMap(values, map[string]interface{}{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, unreplaced, "missing")
}

func TestDownloadExpandsSourceURLTemplate(t *testing.T) {
	dir := t.TempDir()
	// 安装包路径包含占位符，按目录条目展开
	content := "templated package payload"
	_, checksum := writePackage(t, dir, "telemetry-1.2.0.pkg", content)

	spec := &Spec{
		Name:      "telemetry",
		Version:   "1.2.0",
		SourceURL: dir + "/${name}-${version}.pkg",
		Checksum:  checksum,
	}
	manager := newTestManager(t, spec)

	ctx := context.Background()
	require.NoError(t, manager.download(ctx, lifecycle.StepDownload, "telemetry", nil))
	require.NoError(t, manager.validate(ctx, lifecycle.StepValidate, "telemetry", nil))
}
