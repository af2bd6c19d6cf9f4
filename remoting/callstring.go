package remoting

import (
	"fmt"
	"strings"
)

// CallString renders the diagnostic identifier of an invocation in the
// stable form "ClassName.method(arg1,arg2,...)". It is used in error
// payloads only, never for routing.
func CallString(api, method string, args []interface{}) string {
	rendered := make([]string, len(args))
	for i, a := range args {
		rendered[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s.%s(%s)", api, method, strings.Join(rendered, ","))
}
