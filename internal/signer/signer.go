// Package signer implements spec.md §4.4: assembling the canonical byte
// sequence of an SPK, handing it to an external detached-signer (the gpg
// binary under GNUPG_PATH, the same subprocess python-gnupg itself wraps),
// submitting the result to a remote timestamp service, and splicing the
// timestamped signature back into the archive as syno_signature.asc.
package signer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os/exec"
	"regexp"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const signatureMember = "syno_signature.asc"

var (
	iconFileRe   = regexp.MustCompile(`^PACKAGE_ICON(?:_(120|256))?\.PNG$`)
	wizardFileRe = regexp.MustCompile(`^WIZARD_UIFILES/(install|upgrade|uninstall)_uifile(?:_[a-z]{3})?(?:\.sh)?$`)
	confFileRe   = regexp.MustCompile(`^conf/.+$`)
	scriptFileRe = regexp.MustCompile(`^scripts/.+$`)
)

// ErrAlreadySigned is returned by Sign when the archive already carries a
// syno_signature.asc member (spec.md §4.4: "already-signed").
var ErrAlreadySigned = errors.New("signer: already signed")

// ErrNotSigned is returned by Unsign when the archive carries no
// signature (spec.md §4.4: "not-signed").
var ErrNotSigned = errors.New("signer: not signed")

// Signer holds the external collaborators the sign/unsign/export
// operations need: a local gpg keyring (GNUPG_PATH) and a remote
// timestamp service, both optional — a Signer with an empty GnupgPath
// never signs, matching the source's "GNUPG_PATH is None" no-op branch.
type Signer struct {
	GnupgPath    string
	TimestampURL string
	Fingerprint  string
	HTTPClient   *retryablehttp.Client
}

// New builds a Signer whose HTTP client retries the timestamp call once
// and bounds each attempt to 2 seconds, per spec.md §4.4.
func New(gnupgPath, timestampURL, fingerprint string) *Signer {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.HTTPClient.Timeout = 2 * time.Second
	client.Logger = nil
	return &Signer{GnupgPath: gnupgPath, TimestampURL: timestampURL, Fingerprint: fingerprint, HTTPClient: client}
}

// Enabled reports whether this Signer is configured to actually sign,
// mirroring the source's `current_app.config["GNUPG_PATH"] is not None`
// guard at the upload call site.
func (s *Signer) Enabled() bool { return s.GnupgPath != "" }

// Sign builds the canonical byte sequence of spkBytes, obtains a detached
// ASCII-armored signature over it, has the signature timestamped, and
// returns the archive with syno_signature.asc appended.
func (s *Signer) Sign(ctx context.Context, spkBytes []byte) ([]byte, error) {
	members, err := readMembers(spkBytes)
	if err != nil {
		return nil, err
	}
	if _, ok := members[signatureMember]; ok {
		return nil, ErrAlreadySigned
	}

	canonical := canonicalSequence(members)
	signature, err := s.detachSign(ctx, canonical)
	if err != nil {
		return nil, err
	}
	timestamped, err := s.timestamp(ctx, signature)
	if err != nil {
		return nil, err
	}

	return appendMember(spkBytes, signatureMember, timestamped)
}

// Unsign strips syno_signature.asc from the archive, preserving every
// other member and its original order.
func (s *Signer) Unsign(spkBytes []byte) ([]byte, error) {
	members, err := readMembers(spkBytes)
	if err != nil {
		return nil, err
	}
	if _, ok := members[signatureMember]; !ok {
		return nil, ErrNotSigned
	}
	return removeMember(spkBytes, signatureMember)
}

// ExportKeyring exports the repository's public key, ASCII-armored, for
// the catalog `keyrings` field (spec.md §4.3, `build >= 5004`).
func (s *Signer) ExportKeyring(ctx context.Context) (string, error) {
	if !s.Enabled() || s.Fingerprint == "" {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, "gpg", "--homedir", s.GnupgPath, "--armor", "--export", s.Fingerprint)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("signer: export keyring: %w", err)
	}
	return out.String(), nil
}

// detachSign shells out to gpg --detach-sign --armor, matching
// python-gnupg's GPG.sign_file(detach=True) subprocess invocation.
func (s *Signer) detachSign(ctx context.Context, data []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gpg", "--homedir", s.GnupgPath, "--detach-sign", "--armor")
	cmd.Stdin = bytes.NewReader(data)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("signer: detach-sign: %w", err)
	}
	return out.Bytes(), nil
}

// timestamp submits the signature to the remote timestamp service and
// returns the verified, timestamped reply, which replaces the original
// signature text in the archive (spec.md §4.4).
func (s *Signer) timestamp(ctx context.Context, signature []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "signature.asc")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(signature); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", s.TimestampURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signer: timestamp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("signer: timestamp server returned status %d", resp.StatusCode)
	}
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := s.verifyTimestamp(ctx, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// verifyTimestamp checks the timestamp server's reply against the local
// keyring, matching the source's `gpg.verify(response.content)` call.
func (s *Signer) verifyTimestamp(ctx context.Context, reply []byte) error {
	cmd := exec.CommandContext(ctx, "gpg", "--homedir", s.GnupgPath, "--verify")
	cmd.Stdin = bytes.NewReader(reply)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("signer: cannot verify timestamp: %w", err)
	}
	return nil
}

type tarMember struct {
	header *tar.Header
	data   []byte
}

func readMembers(spkBytes []byte) (map[string]tarMember, error) {
	tr := tar.NewReader(bytes.NewReader(spkBytes))
	members := map[string]tarMember{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("signer: invalid spk: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		members[hdr.Name] = tarMember{header: hdr, data: data}
	}
	return members, nil
}

// canonicalSequence concatenates INFO, LICENSE, icons, wizards, conf/*,
// package.tgz, and scripts/* in that group order, each group sorted
// lexicographically by member name, matching
// original_source/spkrepo/utils.py's SPK.sign byte assembly exactly.
func canonicalSequence(members map[string]tarMember) []byte {
	var buf bytes.Buffer
	write := func(name string) {
		if m, ok := members[name]; ok {
			buf.Write(m.data)
		}
	}
	write("INFO")
	write("LICENSE")

	var names []string
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	writeMatching := func(re *regexp.Regexp) {
		for _, name := range names {
			if re.MatchString(name) {
				buf.Write(members[name].data)
			}
		}
	}
	writeMatching(iconFileRe)
	writeMatching(wizardFileRe)
	writeMatching(confFileRe)
	write("package.tgz")
	writeMatching(scriptFileRe)

	return buf.Bytes()
}

// appendMember re-emits the archive with one new trailing member, the Go
// equivalent of tarfile.open(mode="a:"). It rewrites every existing
// member rather than splicing onto the raw bytes, so it never has to
// reason about the end-of-archive padding blocks POSIX tar appends.
func appendMember(spkBytes []byte, name string, data []byte) ([]byte, error) {
	tr := tar.NewReader(bytes.NewReader(spkBytes))
	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		memberData, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(memberData); err != nil {
			return nil, err
		}
	}
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// removeMember rewrites the archive, copying every member except name.
func removeMember(spkBytes []byte, name string) ([]byte, error) {
	tr := tar.NewReader(bytes.NewReader(spkBytes))
	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == name {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
