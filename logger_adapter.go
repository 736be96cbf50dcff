package assetx

import (
	"fmt"

	"github.com/gostratum/core/logx"
)

// ArgsToFields converts alternating key/value pairs into logx fields so call
// sites can stay concise. A trailing key without a value is logged under
// "extra"; non-string keys are formatted with %v.
func ArgsToFields(args ...any) []logx.Field {
	fields := make([]logx.Field, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields = append(fields, logx.Any("extra", args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields = append(fields, logx.Any(key, args[i+1]))
	}
	return fields
}
