package module

import (
	"fmt"
	"strings"
)

// ExpandPlaceholder 替换单个占位符字符串（对外导出）
// value: 可能包含占位符的字符串（形如${name}）
// params: 参数映射，key为占位符名称（不含${}），value为实际值
// 返回替换后的字符串和是否发生替换
func ExpandPlaceholder(value string, params map[string]interface{}) (string, bool) {
	if !strings.Contains(value, "${") {
		return value, false
	}

	replaced := false
	result := value
	for name, actual := range params {
		placeholder := "${" + name + "}"
		if !strings.Contains(result, placeholder) {
			continue
		}

		var strValue string
		switch v := actual.(type) {
		case string:
			strValue = v
		case nil:
			strValue = ""
		default:
			strValue = fmt.Sprintf("%v", v)
		}

		result = strings.ReplaceAll(result, placeholder, strValue)
		replaced = true
	}

	return result, replaced
}

// ExpandPlaceholdersInMap 替换map中所有字符串值的占位符（对外导出）
// 返回未能替换的占位符名称列表和错误
func ExpandPlaceholdersInMap(values map[string]interface{}, params map[string]interface{}) ([]string, error) {
	var unreplaced []string

	for key, value := range values {
		strValue, ok := value.(string)
		if !ok {
			continue
		}

		replaced, _ := ExpandPlaceholder(strValue, params)
		values[key] = replaced

		// 检查是否还有残留的占位符
		if idx := strings.Index(replaced, "${"); idx >= 0 {
			if end := strings.Index(replaced[idx:], "}"); end > 0 {
				unreplaced = append(unreplaced, replaced[idx+2:idx+end])
			}
		}
	}

	if len(unreplaced) > 0 {
		return unreplaced, fmt.Errorf("以下占位符未找到对应的参数值: %v", unreplaced)
	}

	return nil, nil
}

// templateParams 构建模块的占位符参数（内部方法）
func templateParams(spec *Spec) map[string]interface{} {
	return map[string]interface{}{
		"name":    spec.Name,
		"version": spec.Version,
	}
}
