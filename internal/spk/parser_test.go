package spk

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fileEntry struct {
	name string
	data []byte
}

func buildSPK(t *testing.T, files []fileEntry) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.name,
			Size:    int64(len(f.data)),
			Mode:    0644,
			ModTime: time.Unix(0, 0),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return bytes.NewReader(buf.Bytes())
}

func validInfo() []byte {
	return []byte(`package="nzbget"
version="13.0-11"
arch="88f6281"
displayname="NZBGet"
description="A binary newsgrabber"
`)
}

func onePxPNG() []byte {
	// Not a real PNG decode target; Parse only cares about raw bytes.
	return []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
}

func TestParse_Minimal(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})

	parsed, err := Parse(r)
	require.NoError(t, err)
	require.Equal(t, "nzbget", parsed.Info["package"])
	require.Equal(t, "13.0-11", parsed.Info["version"])
	require.Contains(t, parsed.Icons, 72)

	// stream is rewound
	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)
}

func TestParse_MissingInfo(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"package.tgz", []byte("payload")},
	})
	_, err := Parse(r)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeMissingInfo, perr.Code)
}

func TestParse_MissingPackageTgz(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeMissingPackageTgz, perr.Code)
}

func TestParse_MissingRequiredKey(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", []byte(`package="nzbget"
version="13.0-11"
arch="88f6281"
`)},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeMissingInfoKeys, perr.Code)
}

func TestParse_InvalidPackageName(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", []byte(`package="bad name!"
version="13.0-11"
arch="88f6281"
displayname="NZBGet"
description="desc"
`)},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeInvalidPackage, perr.Code)
}

func TestParse_InvalidBoolean(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", []byte(`package="nzbget"
version="13.0-11"
arch="88f6281"
displayname="NZBGet"
description="desc"
ctl_stop="maybe"
`)},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeInvalidBoolean, perr.Code)
}

func TestParse_Missing72pxIcon(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
		{"package.tgz", []byte("payload")},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeMissing72pxIcon, perr.Code)
}

func TestParse_EmbeddedIconBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(onePxPNG())
	info := append([]byte{}, validInfo()...)
	info = append(info, []byte(`package_icon="`+encoded+`"`+"\n")...)
	r := buildSPK(t, []fileEntry{
		{"INFO", info},
		{"package.tgz", []byte("payload")},
	})
	parsed, err := Parse(r)
	require.NoError(t, err)
	require.Equal(t, onePxPNG(), parsed.Icons[72])
}

func TestParse_ChecksumMismatch(t *testing.T) {
	info := append([]byte{}, validInfo()...)
	info = append(info, []byte(`checksum="deadbeefdeadbeefdeadbeefdeadbeef"`+"\n")...)
	r := buildSPK(t, []fileEntry{
		{"INFO", info},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeChecksumMismatch, perr.Code)
}

func TestParse_ChecksumMatch(t *testing.T) {
	payload := []byte("payload")
	sum := md5.Sum(payload)
	info := append([]byte{}, validInfo()...)
	info = append(info, []byte(`checksum="`+hex.EncodeToString(sum[:])+`"`+"\n")...)
	r := buildSPK(t, []fileEntry{
		{"INFO", info},
		{"package.tgz", payload},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	_, err := Parse(r)
	require.NoError(t, err)
}

func TestParse_SignedUploadDetected(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
		{"syno_signature.asc", []byte("-----BEGIN PGP SIGNATURE-----\n...\n-----END PGP SIGNATURE-----")},
	})
	parsed, err := Parse(r)
	require.NoError(t, err)
	require.NotNil(t, parsed.Signature)
}

func TestParse_Wizards(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
		{"WIZARD_UIFILES/install_uifile", []byte("#!/bin/sh\n")},
		{"WIZARD_UIFILES/upgrade_uifile_enu.sh", []byte("#!/bin/sh\n")},
	})
	parsed, err := Parse(r)
	require.NoError(t, err)
	require.True(t, parsed.Wizards[WizardInstall])
	require.True(t, parsed.Wizards[WizardUpgrade])
	require.False(t, parsed.Wizards[WizardUninstall])
}

func TestParse_ConfPKGDeps(t *testing.T) {
	info := append([]byte{}, validInfo()...)
	info = append(info, []byte(`support_conf_folder="yes"`+"\n")...)
	r := buildSPK(t, []fileEntry{
		{"INFO", info},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
		{"conf/PKG_DEPS", []byte("[section1]\nkey1=value1\nkey2=value2\n\n[section2]\nkey3=value3\n")},
	})
	parsed, err := Parse(r)
	require.NoError(t, err)
	require.NotNil(t, parsed.ConfDependencies)
	require.Equal(t, `{"section1":{"key1":"value1","key2":"value2"},"section2":{"key3":"value3"}}`, *parsed.ConfDependencies)
}

func TestParse_EmptyConf(t *testing.T) {
	info := append([]byte{}, validInfo()...)
	info = append(info, []byte(`support_conf_folder="yes"`+"\n")...)
	r := buildSPK(t, []fileEntry{
		{"INFO", info},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
		{"conf", nil},
	})
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeEmptyConf, perr.Code)
}

func TestParse_InvalidSPK(t *testing.T) {
	r := bytes.NewReader([]byte("not a tar file at all"))
	_, err := Parse(r)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, CodeInvalidSPK, perr.Code)
}

func TestParse_Deterministic(t *testing.T) {
	r := buildSPK(t, []fileEntry{
		{"INFO", validInfo()},
		{"package.tgz", []byte("payload")},
		{"PACKAGE_ICON.PNG", onePxPNG()},
	})
	p1, err := Parse(r)
	require.NoError(t, err)
	p2, err := Parse(r)
	require.NoError(t, err)
	require.Equal(t, p1.Info, p2.Info)
	require.Equal(t, p1.PackageTgzMD5, p2.PackageTgzMD5)
}
