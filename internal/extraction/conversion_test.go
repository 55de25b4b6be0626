package extraction

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("prepareMedia", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		outType     string
		err         error
	)

	JustBeforeEach(func() {
		out, outType, err = prepareMedia(data, contentType)
	})

	When("the media is a JPEG", func() {
		BeforeEach(func() {
			data = []byte("\xff\xd8\xff\xe0 jpeg body")
			contentType = "Image/JPEG; charset=binary"
		})

		It("passes it through with a normalized MIME type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(outType).To(Equal("image/jpeg"))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			data = []byte("\x89PNG\r\n\x1a\n fake png")
			contentType = ""
		})

		It("sniffs it from the bytes", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outType).To(Equal("image/png"))
		})
	})

	When("the content type claims HEIC but the bytes are not", func() {
		BeforeEach(func() {
			data = []byte("garbage")
			contentType = "image/heic"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects a heic ftyp brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
	})

	It("rejects other ftyp brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmp42\x00\x00"))).To(BeFalse())
	})

	It("rejects short input", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})

var _ = Describe("geminiParts", func() {
	It("sends only the text part without media", func() {
		parts := geminiParts("prompt", nil, "")
		Expect(parts).To(Equal([]genai.Part{genai.Text("prompt")}))
	})

	It("sends the text part first and the inline media second", func() {
		parts := geminiParts("prompt", []byte("img"), "image/jpeg")
		Expect(parts).To(HaveLen(2))
		Expect(parts[0]).To(Equal(genai.Text("prompt")))
		Expect(parts[1]).To(Equal(genai.Blob{MIMEType: "image/jpeg", Data: []byte("img")}))
	})
})
