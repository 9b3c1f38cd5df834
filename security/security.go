package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/wudi/pdftools/ir/raw"
)

// DataClass tells the handler which crypt filter applies.
type DataClass int

const (
	DataClassString DataClass = iota
	DataClassStream
)

var (
	ErrInvalidPassword    = errors.New("security: invalid password")
	ErrUnsupportedHandler = errors.New("security: unsupported security handler")
	ErrNotAuthenticated   = errors.New("security: handler not authenticated")
)

// Permissions mirrors the /P bit field.
type Permissions struct {
	Print             bool
	Modify            bool
	Copy              bool
	ModifyAnnotations bool
	FillForms         bool
	ExtractAccessible bool
	Assemble          bool
	PrintHighQuality  bool
}

// PermissionsValue packs p into the signed 32-bit /P value. Reserved bits
// 7, 8 and 13-32 are set.
func PermissionsValue(p Permissions) int32 {
	v := uint32(0xFFFFF0C0)
	set := func(on bool, bit uint) {
		if on {
			v |= 1 << (bit - 1)
		}
	}
	set(p.Print, 3)
	set(p.Modify, 4)
	set(p.Copy, 5)
	set(p.ModifyAnnotations, 6)
	set(p.FillForms, 9)
	set(p.ExtractAccessible, 10)
	set(p.Assemble, 11)
	set(p.PrintHighQuality, 12)
	return int32(v)
}

func permissionsFromValue(v int32) Permissions {
	u := uint32(v)
	bit := func(n uint) bool { return u&(1<<(n-1)) != 0 }
	return Permissions{
		Print:             bit(3),
		Modify:            bit(4),
		Copy:              bit(5),
		ModifyAnnotations: bit(6),
		FillForms:         bit(9),
		ExtractAccessible: bit(10),
		Assemble:          bit(11),
		PrintHighQuality:  bit(12),
	}
}

// Handler decrypts and encrypts object data for one document.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
}

// HandlerBuilder assembles a Handler from an /Encrypt dictionary.
type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}

// WithFileID sets the first element of the trailer /ID array.
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder {
	b.fileID = id
	return b
}

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	return newStandardHandler(b.encryptDict, b.fileID)
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool           { return false }
func (noEncryptionHandler) Authenticate(string) error   { return nil }
func (noEncryptionHandler) Permissions() Permissions    { return permissionsFromValue(-1) }
func (noEncryptionHandler) Decrypt(_, _ int, d []byte, _ DataClass) ([]byte, error) {
	return d, nil
}
func (noEncryptionHandler) Encrypt(_, _ int, d []byte, _ DataClass) ([]byte, error) {
	return d, nil
}

type cryptAlgo int

const (
	algoIdentity cryptAlgo = iota
	algoRC4
	algoAESV2
	algoAESV3
)

type standardHandler struct {
	v, r            int
	keyLen          int
	o, u, oe, ue    []byte
	perms           []byte
	p               int32
	fileID          []byte
	encryptMetadata bool
	stmAlgo         cryptAlgo
	strAlgo         cryptAlgo

	key []byte
}

func newStandardHandler(d *raw.DictObj, fileID []byte) (*standardHandler, error) {
	if n, _ := d.Get("Filter").(raw.NameObj); n.Val != "Standard" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHandler, n.Val)
	}
	h := &standardHandler{
		v:               intOf(d.Get("V"), 0),
		r:               intOf(d.Get("R"), 2),
		p:               int32(intOf(d.Get("P"), -1)),
		o:               bytesOf(d.Get("O")),
		u:               bytesOf(d.Get("U")),
		oe:              bytesOf(d.Get("OE")),
		ue:              bytesOf(d.Get("UE")),
		perms:           bytesOf(d.Get("Perms")),
		fileID:          fileID,
		encryptMetadata: true,
	}
	if b, ok := d.Get("EncryptMetadata").(raw.BoolObj); ok {
		h.encryptMetadata = b.V
	}

	bits := intOf(d.Get("Length"), 40)
	switch h.v {
	case 0, 1:
		h.keyLen = 5
		h.stmAlgo, h.strAlgo = algoRC4, algoRC4
	case 2, 3:
		h.keyLen = normalizeKeyLen(bits)
		h.stmAlgo, h.strAlgo = algoRC4, algoRC4
	case 4, 5:
		cf, _ := d.Get("CF").(*raw.DictObj)
		var err error
		var stmLen, strLen int
		if h.stmAlgo, stmLen, err = pickAlgo(cf, d.Get("StmF")); err != nil {
			return nil, err
		}
		if h.strAlgo, strLen, err = pickAlgo(cf, d.Get("StrF")); err != nil {
			return nil, err
		}
		h.keyLen = max(stmLen, strLen)
		if h.keyLen == 0 {
			h.keyLen = normalizeKeyLen(bits)
		}
		if h.v == 5 {
			h.keyLen = 32
		}
	default:
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupportedHandler, h.v)
	}
	if h.r < 2 || h.r > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupportedHandler, h.r)
	}
	if h.r >= 5 && (len(h.u) < 48 || len(h.o) < 48) {
		return nil, errors.New("security: /O or /U too short for AES-256")
	}
	return h, nil
}

func normalizeKeyLen(bits int) int {
	// Some writers put bytes rather than bits in /Length.
	if bits <= 16 {
		return max(bits, 5)
	}
	return min(max(bits/8, 5), 16)
}

// pickAlgo reads the crypt filter named by ref. Identity maps to no-op.
func pickAlgo(cf *raw.DictObj, ref raw.Object) (cryptAlgo, int, error) {
	name, _ := ref.(raw.NameObj)
	if name.Val == "" || name.Val == "Identity" {
		return algoIdentity, 0, nil
	}
	filter, _ := cf.Get(name.Val).(*raw.DictObj)
	if filter == nil {
		return 0, 0, fmt.Errorf("security: crypt filter %q not defined", name.Val)
	}
	n := intOf(filter.Get("Length"), 0)
	if n > 32 {
		n /= 8
	}
	cfm, _ := filter.Get("CFM").(raw.NameObj)
	switch cfm.Val {
	case "V2":
		return algoRC4, n, nil
	case "AESV2":
		return algoAESV2, 16, nil
	case "AESV3":
		return algoAESV3, 32, nil
	case "", "None":
		return algoIdentity, n, nil
	}
	return 0, 0, fmt.Errorf("%w: crypt method %q", ErrUnsupportedHandler, cfm.Val)
}

func (h *standardHandler) IsEncrypted() bool        { return true }
func (h *standardHandler) Permissions() Permissions { return permissionsFromValue(h.p) }

// Authenticate tries password as the user password first, then as the owner
// password.
func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		return h.authenticateAES256(password)
	}
	pwd := []byte(password)
	key := h.deriveKey(pwd)
	if h.checkUserKey(key) {
		h.key = key
		return nil
	}
	userPwd := h.recoverUserPassword(pwd)
	key = h.deriveKey(userPwd)
	if h.checkUserKey(key) {
		h.key = key
		return nil
	}
	return ErrInvalidPassword
}

// deriveKey computes the file key from a user password for revisions 2-4.
func (h *standardHandler) deriveKey(pwd []byte) []byte {
	m := md5.New()
	m.Write(padPassword(pwd))
	m.Write(h.o)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(h.p))
	m.Write(p[:])
	m.Write(h.fileID)
	if h.r >= 4 && !h.encryptMetadata {
		m.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	sum := m.Sum(nil)
	n := h.keyLen
	if h.r == 2 {
		n = 5
	}
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(sum[:n])
			sum = s[:]
		}
	}
	return sum[:n]
}

func (h *standardHandler) checkUserKey(key []byte) bool {
	if h.r == 2 {
		return bytes.Equal(rc4Apply(key, passwordPadding), h.u)
	}
	m := md5.New()
	m.Write(passwordPadding)
	m.Write(h.fileID)
	data := rc4Apply(key, m.Sum(nil))
	for i := 1; i <= 19; i++ {
		data = rc4Apply(xorKey(key, byte(i)), data)
	}
	return len(h.u) >= 16 && bytes.Equal(data[:16], h.u[:16])
}

// recoverUserPassword decrypts /O with a key derived from the owner password.
func (h *standardHandler) recoverUserPassword(ownerPwd []byte) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	n := h.keyLen
	if h.r == 2 {
		n = 5
	}
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key)
			key = s[:]
		}
	}
	key = key[:n]
	if h.r == 2 {
		return rc4Apply(key, h.o)
	}
	data := append([]byte(nil), h.o...)
	for i := 19; i >= 0; i-- {
		data = rc4Apply(xorKey(key, byte(i)), data)
	}
	return data
}

func (h *standardHandler) authenticateAES256(password string) error {
	pwd := []byte(password)
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	if bytes.Equal(h.hash(pwd, h.u[32:40], nil), h.u[:32]) {
		key, err := aesCBCNoPad(h.hash(pwd, h.u[40:48], nil), h.ue, false)
		if err != nil {
			return err
		}
		h.key = key
		return nil
	}
	u48 := h.u[:48]
	if bytes.Equal(h.hash(pwd, h.o[32:40], u48), h.o[:32]) {
		key, err := aesCBCNoPad(h.hash(pwd, h.o[40:48], u48), h.oe, false)
		if err != nil {
			return err
		}
		h.key = key
		return nil
	}
	return ErrInvalidPassword
}

func (h *standardHandler) hash(pwd, salt, udata []byte) []byte {
	if h.r == 5 {
		sum := sha256.Sum256(concat(pwd, salt, udata))
		return sum[:]
	}
	return rev6Hash(pwd, salt, udata)
}

// rev6Hash is the iterated SHA-2 hash used by revision 6.
func rev6Hash(pwd, salt, udata []byte) []byte {
	first := sha256.Sum256(concat(pwd, salt, udata))
	k := first[:]
	var e []byte
	for i := 0; i < 64 || int(e[len(e)-1]) > i-32; i++ {
		unit := concat(pwd, k, udata)
		k1 := bytes.Repeat(unit, 64)
		block, _ := aes.NewCipher(k[:16])
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var hf hash.Hash
		switch sum % 3 {
		case 0:
			hf = sha256.New()
		case 1:
			hf = sha512.New384()
		default:
			hf = sha512.New()
		}
		hf.Write(e)
		k = hf.Sum(nil)
	}
	return k[:32]
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	if class == DataClassStream {
		return h.stmAlgo
	}
	return h.strAlgo
}

func (h *standardHandler) objectKey(objNum, gen int, algo cryptAlgo) []byte {
	if algo == algoAESV3 {
		return h.key
	}
	m := md5.New()
	m.Write(h.key)
	m.Write([]byte{byte(objNum), byte(objNum >> 8), byte(objNum >> 16), byte(gen), byte(gen >> 8)})
	if algo == algoAESV2 {
		m.Write([]byte("sAlT"))
	}
	sum := m.Sum(nil)
	return sum[:min(len(h.key)+5, 16)]
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		return nil, ErrNotAuthenticated
	}
	algo := h.algoFor(class)
	switch algo {
	case algoIdentity:
		return data, nil
	case algoRC4:
		return rc4Apply(h.objectKey(objNum, gen, algo), data), nil
	}
	return aesDecrypt(h.objectKey(objNum, gen, algo), data)
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		return nil, ErrNotAuthenticated
	}
	algo := h.algoFor(class)
	switch algo {
	case algoIdentity:
		return data, nil
	case algoRC4:
		return rc4Apply(h.objectKey(objNum, gen, algo), data), nil
	}
	return aesEncrypt(h.objectKey(objNum, gen, algo), data)
}

// Encryption is a freshly generated AES-256 security handler together with
// the /Encrypt dictionary that describes it.
type Encryption struct {
	Dict    *raw.DictObj
	Handler Handler
}

// NewAES256Encryption builds a revision 6 handler. An empty owner password
// reuses the user password.
func NewAES256Encryption(userPwd, ownerPwd string, perms Permissions) (*Encryption, error) {
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	up, op := truncate127([]byte(userPwd)), truncate127([]byte(ownerPwd))
	fileKey, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	salts, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	uvs, uks, ovs, oks := salts[0:8], salts[8:16], salts[16:24], salts[24:32]

	u := concat(rev6Hash(up, uvs, nil), uvs, uks)
	ue, err := aesCBCNoPad(rev6Hash(up, uks, nil), fileKey, true)
	if err != nil {
		return nil, err
	}
	o := concat(rev6Hash(op, ovs, u), ovs, oks)
	oe, err := aesCBCNoPad(rev6Hash(op, oks, u), fileKey, true)
	if err != nil {
		return nil, err
	}

	p := PermissionsValue(perms)
	block := make([]byte, 16)
	binary.LittleEndian.PutUint32(block[0:4], uint32(p))
	copy(block[4:8], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	block[8] = 'T'
	copy(block[9:12], "adb")
	tail, err := randomBytes(4)
	if err != nil {
		return nil, err
	}
	copy(block[12:16], tail)
	c, err := aes.NewCipher(fileKey)
	if err != nil {
		return nil, err
	}
	permsEnc := make([]byte, 16)
	c.Encrypt(permsEnc, block)

	stdCF := raw.Dict()
	stdCF.Set("AuthEvent", raw.NameLiteral("DocOpen"))
	stdCF.Set("CFM", raw.NameLiteral("AESV3"))
	stdCF.Set("Length", raw.NumberInt(32))
	cf := raw.Dict()
	cf.Set("StdCF", stdCF)

	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.NumberInt(5))
	d.Set("R", raw.NumberInt(6))
	d.Set("Length", raw.NumberInt(256))
	d.Set("CF", cf)
	d.Set("StmF", raw.NameLiteral("StdCF"))
	d.Set("StrF", raw.NameLiteral("StdCF"))
	d.Set("O", raw.HexStr(o))
	d.Set("U", raw.HexStr(u))
	d.Set("OE", raw.HexStr(oe))
	d.Set("UE", raw.HexStr(ue))
	d.Set("P", raw.NumberInt(int64(p)))
	d.Set("Perms", raw.HexStr(permsEnc))
	d.Set("EncryptMetadata", raw.Bool(true))

	h := &standardHandler{
		v: 5, r: 6, keyLen: 32,
		o: o, u: u, oe: oe, ue: ue, perms: permsEnc, p: p,
		encryptMetadata: true,
		stmAlgo:         algoAESV3,
		strAlgo:         algoAESV3,
		key:             fileKey,
	}
	return &Encryption{Dict: d, Handler: h}, nil
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], passwordPadding)
	return out
}

func rc4Apply(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func xorKey(key []byte, v byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ v
	}
	return out
}

// aesDecrypt handles the IV-prefixed CBC payloads used by AESV2 and AESV3.
// Bad padding is tolerated because many writers get it wrong.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return []byte{}, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	body = body[:len(body)-len(body)%aes.BlockSize]
	if len(body) == 0 {
		return []byte{}, nil
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	if pad := int(out[len(out)-1]); pad >= 1 && pad <= aes.BlockSize && pad <= len(out) {
		ok := true
		for _, b := range out[len(out)-pad:] {
			if int(b) != pad {
				ok = false
				break
			}
		}
		if ok {
			out = out[:len(out)-pad]
		}
	}
	return out, nil
}

func aesEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// aesCBCNoPad runs AES-256-CBC with a zero IV over whole blocks.
func aesCBCNoPad(key, data []byte, encrypt bool) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("security: key material is not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func truncate127(b []byte) []byte {
	if len(b) > 127 {
		return b[:127]
	}
	return b
}

func intOf(o raw.Object, def int) int {
	if n, ok := o.(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}

func bytesOf(o raw.Object) []byte {
	s, _ := o.(raw.StringObj)
	return s.Bytes
}
