package dbus

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrKeyringPermission is returned when the DBUS_COOKIE_SHA1 keyring
// directory is group- or world-writable, or not owned by the current user.
var ErrKeyringPermission = errors.New("dbus: keyring directory has unsafe permissions")

// ErrNoCookie is returned when the requested cookie context/id cannot be
// found in the keyring.
var ErrNoCookie = errors.New("dbus: no matching cookie in keyring")

// AuthCookieSha1 implements the DBUS_COOKIE_SHA1 authentication mechanism.
type AuthCookieSha1 struct{}

func (a AuthCookieSha1) FirstData() ([]byte, []byte, AuthStatus) {
	u, err := user.Current()
	if err != nil {
		return []byte("DBUS_COOKIE_SHA1"), nil, AuthError
	}
	return []byte("DBUS_COOKIE_SHA1"), hexEncode([]byte(u.Uid)), AuthContinue
}

func (a AuthCookieSha1) HandleData(data []byte) ([]byte, AuthStatus) {
	challenge := make([]byte, len(data)/2)
	if _, err := hex.Decode(challenge, data); err != nil {
		return nil, AuthError
	}
	parts := bytes.SplitN(challenge, []byte{' '}, 3)
	if len(parts) != 3 {
		return nil, AuthError
	}
	context, id, svchallenge := parts[0], parts[1], parts[2]
	cookie, err := a.getCookie(string(context), string(id))
	if err != nil {
		return nil, AuthError
	}
	clchallenge := a.generateChallenge()
	hash := sha1.New()
	hash.Write(bytes.Join([][]byte{svchallenge, clchallenge, cookie}, []byte{':'}))
	hexhash := hexEncode(hash.Sum(nil))
	resp := append(append(clchallenge, ' '), hexhash...)
	return hexEncode(resp), AuthOk
}

// getCookie reads the keyring file for the given context and returns the
// cookie matching id, after checking the keyring directory's permissions.
func (a AuthCookieSha1) getCookie(context, id string) ([]byte, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return nil, errors.New("dbus: HOME is not set")
	}
	dir := filepath.Join(home, ".dbus-keyrings")
	if err := checkKeyringPermissions(dir); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(dir, context))
	if err != nil {
		return nil, errors.Wrap(err, "dbus: opening keyring")
	}
	defer file.Close()

	rd := bufio.NewReader(file)
	for {
		line, err := rd.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			break
		}
		line = bytes.TrimRight(line, "\n")
		fields := bytes.SplitN(line, []byte{' '}, 3)
		if len(fields) == 3 && string(fields[0]) == id {
			return fields[2], nil
		}
		if err != nil {
			break
		}
	}
	return nil, ErrNoCookie
}

// checkKeyringPermissions enforces the DBus requirement that the keyring
// directory is owned by the current user and not writable by the group
// or world.
func checkKeyringPermissions(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, "dbus: stat keyring directory")
	}
	if info.Mode().Perm()&0022 != 0 {
		return ErrKeyringPermission
	}
	if err := checkKeyringOwner(info); err != nil {
		return err
	}
	return nil
}

func (a AuthCookieSha1) generateChallenge() []byte {
	b := make([]byte, 16)
	n, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	if n != 16 {
		panic(io.ErrUnexpectedEOF)
	}
	return hexEncode(b)
}

func hexEncode(b []byte) []byte {
	enc := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(enc, b)
	return enc
}
