package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartablePrecedence(t *testing.T) {
	falseVal := false
	trueVal := true

	cases := []struct {
		name string
		info map[string]bool
		want *bool
	}{
		{"neither key present", map[string]bool{}, nil},
		{"startable true only", map[string]bool{"startable": true}, &trueVal},
		{"startable false only", map[string]bool{"startable": false}, &falseVal},
		{"ctl_stop true only", map[string]bool{"ctl_stop": true}, &trueVal},
		{"ctl_stop false only", map[string]bool{"ctl_stop": false}, &falseVal},
		{"startable true, ctl_stop false wins", map[string]bool{"startable": true, "ctl_stop": false}, &falseVal},
		{"startable false, ctl_stop true: false still wins", map[string]bool{"startable": false, "ctl_stop": true}, &falseVal},
		{"both true", map[string]bool{"startable": true, "ctl_stop": true}, &trueVal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := startable(tc.info)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestLocalizedFrom(t *testing.T) {
	info := map[string]string{
		"desc":     "default description",
		"desc_fre": "description en francais",
		"unrelated": "ignored",
	}
	got := localizedFrom(info, "desc")
	assert.Equal(t, map[string]string{
		"enu": "default description",
		"fre": "description en francais",
	}, got)
}

func TestLocalizedFromEmpty(t *testing.T) {
	assert.Empty(t, localizedFrom(map[string]string{"other": "x"}, "desc"))
}

func TestIntersectSortedCommonCodes(t *testing.T) {
	got := intersect([]string{"qoriq", "noarch", "88f628x"}, []string{"88f628x", "qoriq"})
	assert.Equal(t, []string{"88f628x", "qoriq"}, got)
}

func TestIntersectNoOverlap(t *testing.T) {
	assert.Empty(t, intersect([]string{"noarch"}, []string{"qoriq"}))
}

func TestOptionalString(t *testing.T) {
	info := map[string]string{"install_dep_packages": "python"}
	got := optionalString(info, "install_dep_packages")
	require.NotNil(t, got)
	assert.Equal(t, "python", *got)

	assert.Nil(t, optionalString(info, "missing_key"))
}

func TestConflictMessageSortsCodes(t *testing.T) {
	assert.Equal(t, "Conflicting architectures: 88f628x, qoriq", conflictMessage([]string{"qoriq", "88f628x"}))
}

func TestErrorHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidFirmware:        422,
		CodeInsufficientPermission: 403,
		CodeArchitectureConflict:   409,
		CodeSignFailed:             500,
	}
	for code, status := range cases {
		err := newErr(code, "boom %d", 1)
		assert.Equal(t, status, err.HTTPStatus())
		assert.Contains(t, err.Error(), "boom 1")
	}
}
