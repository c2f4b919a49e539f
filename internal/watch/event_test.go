package watch

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestFromFSNotify(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want EventKind
	}{
		{fsnotify.Create, KindCreated},
		{fsnotify.Write, KindModified},
		{fsnotify.Remove, KindRemoved},
		{fsnotify.Rename, KindRemoved},
		{fsnotify.Chmod, KindIgnored},
		{fsnotify.Create | fsnotify.Remove, KindRemoved},
	}
	for _, tc := range cases {
		got := FromFSNotify(fsnotify.Event{Name: "/p/a.ts", Op: tc.op})
		assert.Equal(t, tc.want, got.Kind, tc.op.String())
		assert.Equal(t, []string{"/p/a.ts"}, got.Paths)
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "created", KindCreated.String())
	assert.Equal(t, "modified", KindModified.String())
	assert.Equal(t, "removed", KindRemoved.String())
	assert.Equal(t, "ignored", KindIgnored.String())
}
