package common

import jsoniter "github.com/json-iterator/go"

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
	// jsonSafe 反序列化时保留数字精度（避免 int64 精度丢失）
	jsonSafe = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()
)

func JsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func JsonMarshalToString(v interface{}) (string, error) {
	return json.MarshalToString(v)
}

// JsonMarshalSafe 使用精度安全配置序列化
func JsonMarshalSafe(v interface{}) ([]byte, error) {
	return jsonSafe.Marshal(v)
}

// JsonMarshalToStringSafe 使用精度安全配置序列化为字符串
func JsonMarshalToStringSafe(v interface{}) (string, error) {
	return jsonSafe.MarshalToString(v)
}

func JsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func JsonUnmarshalFromString(str string, v interface{}) error {
	return json.UnmarshalFromString(str, v)
}
