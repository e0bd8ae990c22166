package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// ReplacePlaceholder 替换单个占位符字符串
// value: 形如 ${name} 的完整占位符
// params: 参数映射，key为占位符名称（不含${}），value为实际值
// 返回替换后的字符串和是否成功替换
func ReplacePlaceholder(value string, params map[string]any) (string, bool) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value, false
	}

	paramName := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
	if paramName == "" {
		return value, false
	}

	actualValue, exists := params[paramName]
	if !exists {
		return value, false
	}
	return toString(actualValue), true
}

// ReplaceParamsInMap 替换map中值为完整占位符的string参数
// 返回未替换的占位符列表和错误
func ReplaceParamsInMap(paramsMap map[string]any, replacementParams map[string]any) ([]string, error) {
	var unreplaced []string

	for key, value := range paramsMap {
		strValue, ok := value.(string)
		if !ok {
			continue
		}

		replaced, success := ReplacePlaceholder(strValue, replacementParams)
		if success {
			paramsMap[key] = replaced
		} else if strings.HasPrefix(strValue, "${") && strings.HasSuffix(strValue, "}") {
			paramName := strings.TrimPrefix(strings.TrimSuffix(strValue, "}"), "${")
			unreplaced = append(unreplaced, paramName)
		}
	}

	if len(unreplaced) > 0 {
		return unreplaced, fmt.Errorf("以下占位符未找到对应的参数值: %v", unreplaced)
	}
	return nil, nil
}

// RenderTemplate 替换文本中出现的所有 ${name} 占位符（对外导出）
// 用于SQL等多行文本；未找到的占位符原样保留并返回错误
func RenderTemplate(text string, params map[string]any) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return toString(v)
	})
	if len(missing) > 0 {
		return out, fmt.Errorf("以下占位符未找到对应的参数值: %v", missing)
	}
	return out, nil
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
