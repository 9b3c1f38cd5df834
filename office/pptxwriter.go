package office

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zip"
)

// emuPerPoint converts PDF points to DrawingML English Metric Units.
const emuPerPoint = 12700

// Slide size limits accepted by PowerPoint, in EMU.
const (
	minSlideEMU = 914400
	maxSlideEMU = 51206400
)

// PptxWriter builds a presentation of absolutely positioned text boxes and
// pictures on blank slides.
type PptxWriter struct {
	width, height float64
	slides        []*PptxSlide
}

func NewPptxWriter() *PptxWriter { return &PptxWriter{} }

// PptxSlide collects the shapes of one slide. Coordinates are points from
// the top-left corner of the slide.
type PptxSlide struct {
	shapes bytes.Buffer
	nextID int
	media  []pptxMedia
}

type pptxMedia struct {
	data []byte
	ext  string
}

// AddSlide appends a blank slide. A presentation has one slide size; the
// first slide's width and height set it.
func (w *PptxWriter) AddSlide(width, height float64) *PptxSlide {
	if len(w.slides) == 0 {
		w.width, w.height = width, height
	}
	s := &PptxSlide{nextID: 2}
	w.slides = append(w.slides, s)
	return s
}

// TextBox places a single-paragraph, non-wrapping text box.
func (s *PptxSlide) TextBox(x, y, width, height, size float64, text string) {
	id := s.id()
	fmt.Fprintf(&s.shapes, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="TextBox %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr><p:spPr>%s<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`,
		id, id, xfrm(x, y, width, height))
	fmt.Fprintf(&s.shapes, `<p:txBody><a:bodyPr wrap="none" lIns="0" tIns="0" rIns="0" bIns="0" rtlCol="0"><a:noAutofit/></a:bodyPr><a:lstStyle/><a:p><a:r><a:rPr lang="en-US" sz="%d" dirty="0"/><a:t>`,
		hundredths(size))
	xml.EscapeText(&s.shapes, []byte(text))
	s.shapes.WriteString(`</a:t></a:r></a:p></p:txBody></p:sp>`)
}

// Picture places an image stretched over the given box. ext is "png" or
// "jpg".
func (s *PptxSlide) Picture(x, y, width, height float64, data []byte, ext string) error {
	if ext != "png" && ext != "jpg" {
		return fmt.Errorf("office: unsupported picture format %q", ext)
	}
	s.media = append(s.media, pptxMedia{data: data, ext: ext})
	id := s.id()
	// rId1 is the slide layout; pictures follow in order.
	fmt.Fprintf(&s.shapes, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr><p:blipFill><a:blip r:embed="rId%d"/><a:stretch><a:fillRect/></a:stretch></p:blipFill><p:spPr>%s<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
		id, id, len(s.media)+1, xfrm(x, y, width, height))
	return nil
}

func (s *PptxSlide) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func emu(pt float64) int64 { return int64(math.Round(pt * emuPerPoint)) }

func hundredths(size float64) int {
	return min(max(int(math.Round(size*100)), 100), 400000)
}

func xfrm(x, y, width, height float64) string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`,
		emu(x), emu(y), emu(max(width, 0)), emu(max(height, 0)))
}

func slideEMU(pt, fallback float64) int64 {
	if pt <= 0 {
		pt = fallback
	}
	return min(max(emu(pt), minSlideEMU), maxSlideEMU)
}

const (
	pptxNS     = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	xmlHeader  = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	relsOpen   = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`
	relsClose  = `</Relationships>`
	relBase    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	emptyTree  = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`
	colorMap   = `<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>`
	pptxMaster = xmlHeader + `<p:sldMaster ` + pptxNS + `><p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` + colorMap +
		`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst><p:txStyles><p:titleStyle/><p:bodyStyle/><p:otherStyle/></p:txStyles></p:sldMaster>`
	pptxLayout = xmlHeader + `<p:sldLayout ` + pptxNS + ` type="blank" preserve="1"><p:cSld name="Blank"><p:spTree>` + emptyTree + `</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`
)

// pptxTheme is the smallest theme PowerPoint accepts: two colour sets, one
// font pair and three entries in each format style list.
var pptxTheme = func() string {
	var sb bytes.Buffer
	sb.WriteString(xmlHeader + `<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office"><a:themeElements><a:clrScheme name="Office">`)
	sb.WriteString(`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1><a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>`)
	for _, c := range [][2]string{{"dk2", "44546A"}, {"lt2", "E7E6E6"}, {"accent1", "4472C4"}, {"accent2", "ED7D31"}, {"accent3", "A5A5A5"}, {"accent4", "FFC000"}, {"accent5", "5B9BD5"}, {"accent6", "70AD47"}, {"hlink", "0563C1"}, {"folHlink", "954F72"}} {
		fmt.Fprintf(&sb, `<a:%s><a:srgbClr val="%s"/></a:%s>`, c[0], c[1], c[0])
	}
	sb.WriteString(`</a:clrScheme><a:fontScheme name="Office"><a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont><a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont></a:fontScheme><a:fmtScheme name="Office">`)
	fill := `<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`
	line := `<a:ln w="6350"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`
	effect := `<a:effectStyle><a:effectLst/></a:effectStyle>`
	sb.WriteString(`<a:fillStyleLst>` + fill + fill + fill + `</a:fillStyleLst>`)
	sb.WriteString(`<a:lnStyleLst>` + line + line + line + `</a:lnStyleLst>`)
	sb.WriteString(`<a:effectStyleLst>` + effect + effect + effect + `</a:effectStyleLst>`)
	sb.WriteString(`<a:bgFillStyleLst>` + fill + fill + fill + `</a:bgFillStyleLst>`)
	sb.WriteString(`</a:fmtScheme></a:themeElements></a:theme>`)
	return sb.String()
}()

// WriteTo writes the .pptx package. A presentation without slides gets one
// blank letter-size slide.
func (w *PptxWriter) WriteTo(out io.Writer) (int64, error) {
	if len(w.slides) == 0 {
		w.AddSlide(792, 612)
	}
	type part struct {
		name string
		data string
	}
	var (
		parts    []part
		types    bytes.Buffer
		presRels bytes.Buffer
		sldIDs   bytes.Buffer
		mediaN   int
	)
	types.WriteString(xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	types.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Default Extension="png" ContentType="image/png"/><Default Extension="jpg" ContentType="image/jpeg"/>`)
	types.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)

	presRels.WriteString(relsOpen)
	fmt.Fprintf(&presRels, `<Relationship Id="rId1" Type="%sslideMaster" Target="slideMasters/slideMaster1.xml"/>`, relBase)
	fmt.Fprintf(&presRels, `<Relationship Id="rId2" Type="%stheme" Target="theme/theme1.xml"/>`, relBase)

	for i, s := range w.slides {
		n := i + 1
		fmt.Fprintf(&types, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, n)
		fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%sslide" Target="slides/slide%d.xml"/>`, n+2, relBase, n)
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, n+2)

		var rels bytes.Buffer
		rels.WriteString(relsOpen)
		fmt.Fprintf(&rels, `<Relationship Id="rId1" Type="%sslideLayout" Target="../slideLayouts/slideLayout1.xml"/>`, relBase)
		for j, m := range s.media {
			mediaN++
			name := fmt.Sprintf("image%d.%s", mediaN, m.ext)
			fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="%simage" Target="../media/%s"/>`, j+2, relBase, name)
			parts = append(parts, part{"ppt/media/" + name, string(m.data)})
		}
		rels.WriteString(relsClose)
		parts = append(parts,
			part{fmt.Sprintf("ppt/slides/slide%d.xml", n), xmlHeader + `<p:sld ` + pptxNS + `><p:cSld><p:spTree>` + emptyTree + s.shapes.String() + `</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`},
			part{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), rels.String()},
		)
	}
	types.WriteString(`</Types>`)
	presRels.WriteString(relsClose)

	pres := fmt.Sprintf(xmlHeader+`<p:presentation %s saveSubsetFonts="1"><p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst><p:sldIdLst>%s</p:sldIdLst><p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/></p:presentation>`,
		pptxNS, sldIDs.String(), slideEMU(w.width, 792), slideEMU(w.height, 612))

	head := []part{
		{"[Content_Types].xml", types.String()},
		{"_rels/.rels", relsOpen + fmt.Sprintf(`<Relationship Id="rId1" Type="%sofficeDocument" Target="ppt/presentation.xml"/>`, relBase) + relsClose},
		{"ppt/presentation.xml", pres},
		{"ppt/_rels/presentation.xml.rels", presRels.String()},
		{"ppt/slideMasters/slideMaster1.xml", pptxMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", relsOpen + fmt.Sprintf(`<Relationship Id="rId1" Type="%sslideLayout" Target="../slideLayouts/slideLayout1.xml"/><Relationship Id="rId2" Type="%stheme" Target="../theme/theme1.xml"/>`, relBase, relBase) + relsClose},
		{"ppt/slideLayouts/slideLayout1.xml", pptxLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", relsOpen + fmt.Sprintf(`<Relationship Id="rId1" Type="%sslideMaster" Target="../slideMasters/slideMaster1.xml"/>`, relBase) + relsClose},
		{"ppt/theme/theme1.xml", pptxTheme},
	}

	cw := &countingWriter{w: out}
	zw := zip.NewWriter(cw)
	for _, p := range append(head, parts...) {
		method := zip.Deflate
		if strings.HasPrefix(p.name, "ppt/media/") {
			method = zip.Store
		}
		f, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: method})
		if err != nil {
			return cw.n, err
		}
		if _, err := io.WriteString(f, p.data); err != nil {
			return cw.n, err
		}
	}
	err := zw.Close()
	return cw.n, err
}
