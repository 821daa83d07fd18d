package client

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"golang.org/x/text/encoding/ianaindex"
)

const envelopeFormat = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:wsaa="http://wsaa.view.sua.dvadac.desein.afip.gov">
   <soapenv:Header/>
   <soapenv:Body>
      <wsaa:loginCms>
         <wsaa:in0>%s</wsaa:in0>
      </wsaa:loginCms>
   </soapenv:Body>
</soapenv:Envelope>`

// BuildEnvelope codifica el CMS en base64 (sin saltos de línea) y lo envuelve
// en el request SOAP de LoginCms.
func BuildEnvelope(cms []byte) []byte {
	return []byte(fmt.Sprintf(envelopeFormat, base64.StdEncoding.EncodeToString(cms)))
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *soapFault `xml:"Fault"`
		Response *struct {
			Return *string `xml:"loginCmsReturn"`
		} `xml:"loginCmsResponse"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type loginTicketResponse struct {
	XMLName xml.Name `xml:"loginTicketResponse"`
	Header  struct {
		Source         string `xml:"source"`
		Destination    string `xml:"destination"`
		UniqueID       string `xml:"uniqueId"`
		GenerationTime string `xml:"generationTime"`
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Credentials struct {
		Token string `xml:"token"`
		Sign  string `xml:"sign"`
	} `xml:"credentials"`
}

var errNoReturn = errors.New("response has no loginCmsReturn")

// parseEnvelope devuelve el loginCmsReturn o el fault. Ambos nil + error si el
// cuerpo no es un envelope SOAP.
func parseEnvelope(body []byte) (string, *wsaa.AuthorityFault, error) {
	var env soapEnvelope
	if err := decodeXML(body, &env); err != nil {
		return "", nil, fmt.Errorf("decode soap envelope: %w", err)
	}
	if f := env.Body.Fault; f != nil {
		return "", &wsaa.AuthorityFault{Code: strings.TrimSpace(f.Code), String: strings.TrimSpace(f.String)}, nil
	}
	if env.Body.Response == nil || env.Body.Response.Return == nil {
		return "", nil, errNoReturn
	}
	return *env.Body.Response.Return, nil, nil
}

// ParseLoginTicketResponse parsea el loginTicketResponse devuelto por el WSAA.
// Los timestamps sin zona se interpretan en loc.
func ParseLoginTicketResponse(doc []byte, loc *time.Location) (*wsaa.AccessTicket, error) {
	var ltr loginTicketResponse
	if err := decodeXML(doc, &ltr); err != nil {
		return nil, fmt.Errorf("decode loginTicketResponse: %w", err)
	}

	token := strings.TrimSpace(ltr.Credentials.Token)
	sign := strings.TrimSpace(ltr.Credentials.Sign)
	var missing []string
	if token == "" {
		missing = append(missing, "token")
	}
	if sign == "" {
		missing = append(missing, "sign")
	}
	if strings.TrimSpace(ltr.Header.ExpirationTime) == "" {
		missing = append(missing, "expirationTime")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("loginTicketResponse missing %s", strings.Join(missing, ", "))
	}

	exp, err := parseTimestamp(ltr.Header.ExpirationTime, loc)
	if err != nil {
		return nil, fmt.Errorf("expirationTime: %w", err)
	}

	t := &wsaa.AccessTicket{
		Token:       token,
		Sign:        sign,
		ExpiresAt:   exp,
		Source:      strings.TrimSpace(ltr.Header.Source),
		Destination: strings.TrimSpace(ltr.Header.Destination),
	}

	if g := strings.TrimSpace(ltr.Header.GenerationTime); g != "" {
		gen, err := parseTimestamp(g, loc)
		if err != nil {
			return nil, fmt.Errorf("generationTime: %w", err)
		}
		if !gen.Before(exp) {
			return nil, fmt.Errorf("generationTime %s is not before expirationTime %s", g, ltr.Header.ExpirationTime)
		}
		t.GeneratedAt = gen
	}
	if u := strings.TrimSpace(ltr.Header.UniqueID); u != "" {
		if id, err := strconv.ParseUint(u, 10, 64); err == nil {
			t.UniqueID = id
		}
	}
	return t, nil
}

// El WSAA responde con offset y milisegundos (2024-06-10T03:33:20.123-03:00);
// se aceptan también los formatos del request.
var responseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func parseTimestamp(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if loc == nil {
		loc = time.UTC
	}
	var firstErr error
	for _, layout := range responseLayouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// decodeXML acepta documentos declarados en charsets distintos de UTF-8
// (ej: ISO-8859-1).
func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil {
			return nil, err
		}
		if enc == nil {
			return nil, fmt.Errorf("unsupported charset %q", label)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec.Decode(v)
}
