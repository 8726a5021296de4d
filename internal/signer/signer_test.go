package signer

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func readNames(t *testing.T, spkBytes []byte) []string {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(spkBytes))
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	return names
}

func TestCanonicalSequenceGroupOrderAndSorting(t *testing.T) {
	members, err := readMembers(buildArchive(t, map[string]string{
		"package.tgz":                     "PKG",
		"INFO":                            "INFO",
		"LICENSE":                         "LIC",
		"scripts/postinst":                "POST",
		"scripts/preinst":                 "PRE",
		"conf/privilege":                  "PRIV",
		"conf/resource":                   "RES",
		"WIZARD_UIFILES/install_uifile":   "WIZ",
		"PACKAGE_ICON.PNG":                "ICON",
		"PACKAGE_ICON_256.PNG":            "ICON256",
	}))
	require.NoError(t, err)

	got := canonicalSequence(members)
	want := "INFO" + "LIC" + "ICON" + "ICON256" + "WIZ" + "PRIV" + "RES" + "PKG" + "POST" + "PRE"
	assert.Equal(t, want, string(got))
}

func TestCanonicalSequenceSkipsAbsentGroups(t *testing.T) {
	members, err := readMembers(buildArchive(t, map[string]string{
		"INFO":        "INFO",
		"package.tgz": "PKG",
	}))
	require.NoError(t, err)

	assert.Equal(t, "INFOPKG", string(canonicalSequence(members)))
}

func TestAppendThenRemoveMemberRoundTrips(t *testing.T) {
	original := buildArchive(t, map[string]string{
		"INFO":        "info-contents",
		"package.tgz": "pkg-contents",
	})

	signed, err := appendMember(original, signatureMember, []byte("sig-contents"))
	require.NoError(t, err)
	assert.Contains(t, readNames(t, signed), signatureMember)

	unsigned, err := removeMember(signed, signatureMember)
	require.NoError(t, err)
	assert.ElementsMatch(t, readNames(t, original), readNames(t, unsigned))

	members, err := readMembers(unsigned)
	require.NoError(t, err)
	assert.Equal(t, "info-contents", string(members["INFO"].data))
	assert.Equal(t, "pkg-contents", string(members["package.tgz"].data))
}

func TestSignRejectsAlreadySignedArchiveWithoutShellingOut(t *testing.T) {
	s := &Signer{}
	archive := buildArchive(t, map[string]string{
		"INFO":          "info",
		signatureMember: "existing-sig",
	})

	_, err := s.Sign(context.Background(), archive)
	assert.ErrorIs(t, err, ErrAlreadySigned)
}

func TestUnsignRejectsUnsignedArchive(t *testing.T) {
	s := &Signer{}
	archive := buildArchive(t, map[string]string{"INFO": "info"})

	_, err := s.Unsign(archive)
	assert.ErrorIs(t, err, ErrNotSigned)
}

func TestUnsignStripsSignatureMemberOnly(t *testing.T) {
	s := &Signer{}
	archive := buildArchive(t, map[string]string{
		"INFO":          "info",
		"package.tgz":   "pkg",
		signatureMember: "sig",
	})

	unsigned, err := s.Unsign(archive)
	require.NoError(t, err)
	names := readNames(t, unsigned)
	assert.NotContains(t, names, signatureMember)
	assert.ElementsMatch(t, []string{"INFO", "package.tgz"}, names)
}

func TestExportKeyringNoOpWhenDisabled(t *testing.T) {
	s := &Signer{}
	key, err := s.ExportKeyring(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
}
