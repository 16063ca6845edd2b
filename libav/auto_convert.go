//go:build with_libav
// +build with_libav

package libav

// #cgo pkg-config: libavfilter
// #include <libavfilter/avfilter.h>
//
// static void avcore_set_auto_convert(AVFilterGraph *graph, int enabled) {
// 	avfilter_graph_set_auto_convert(graph, enabled ? AVFILTER_AUTO_CONVERT_ALL : AVFILTER_AUTO_CONVERT_NONE);
// }
import "C"

import (
	"reflect"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/unsafetools"
)

// setAutoConvert calls avfilter_graph_set_auto_convert, which
// astiav.FilterGraph does not wrap.
func setAutoConvert(graph *astiav.FilterGraph, enabled bool) {
	ptr := unsafetools.FieldByNameInValue(reflect.ValueOf(graph), "c").Elem().UnsafePointer()
	var flag C.int
	if enabled {
		flag = 1
	}
	C.avcore_set_auto_convert((*C.AVFilterGraph)(ptr), flag)
}
