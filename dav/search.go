package dav

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smhanov/advsearch/kql"
)

const (
	methodReport = "REPORT"
	nsDAV        = "DAV:"
	nsOC         = "http://owncloud.org/ns"

	// DefaultLimit is used when a Request has no limit.
	DefaultLimit = 100
)

// Request is one page of a search.
type Request struct {
	Query  string
	Limit  int
	Offset int
}

// Result is one page of matches. Total is the backend's total when it
// reports one, otherwise the number of resources on this page.
type Result struct {
	Query     string     `json:"query"`
	Total     int        `json:"total"`
	Resources []Resource `json:"results"`
}

type Resource struct {
	Href         string    `json:"href"`
	Name         string    `json:"name"`
	FileID       string    `json:"fileId,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	IsFolder     bool      `json:"isFolder"`
	Photo        *Photo    `json:"photo,omitempty"`
}

// Photo carries the EXIF properties the backend returns for images.
type Photo struct {
	CameraMake  string  `json:"cameraMake,omitempty"`
	CameraModel string  `json:"cameraModel,omitempty"`
	TakenAt     string  `json:"takenDateTime,omitempty"`
	ISO         int     `json:"iso,omitempty"`
	FNumber     float64 `json:"fNumber,omitempty"`
	FocalLength float64 `json:"focalLength,omitempty"`
	Orientation int     `json:"orientation,omitempty"`
}

// requestedProps is the d:prop block sent with every search.
const requestedProps = `<d:prop>` +
	`<oc:fileid/><oc:name/><d:getcontenttype/><d:getcontentlength/><oc:size/>` +
	`<d:getlastmodified/><d:resourcetype/><oc:tags/><oc:photo/>` +
	`</d:prop>`

// searchBody builds the REPORT body. The query is XML-escaped here and
// nowhere else.
func searchBody(r Request) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<oc:search-files xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">`)
	b.WriteString(requestedProps)
	b.WriteString(`<oc:search>`)
	b.WriteString(`<oc:pattern>` + kql.EscapeForEmbedding(r.Query) + `</oc:pattern>`)
	b.WriteString(`<oc:limit>` + strconv.Itoa(r.Limit) + `</oc:limit>`)
	b.WriteString(`<oc:offset>` + strconv.Itoa(r.Offset) + `</oc:offset>`)
	b.WriteString(`</oc:search>`)
	b.WriteString(`</oc:search-files>`)
	return []byte(b.String())
}

// Search runs one page of query against the backend.
func (c *Client) Search(ctx context.Context, r Request) (*Result, error) {
	if strings.TrimSpace(r.Query) == "" {
		r.Query = kql.MatchAll
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}

	req, err := c.prepareRequest(ctx, methodReport, searchBody(r))
	if err != nil {
		return nil, err
	}
	c.signRequest(req)

	body, header, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}

	resources, err := decodeMultistatus(body)
	if err != nil {
		return nil, err
	}

	result := &Result{Query: r.Query, Total: len(resources), Resources: resources}
	if total, err := strconv.Atoi(header.Get("X-Total-Count")); err == nil && total >= 0 {
		result.Total = total
	}
	c.log.Debug().
		Str("query", r.Query).
		Int("offset", r.Offset).
		Int("count", len(resources)).
		Int("total", result.Total).
		Msg("Search page decoded")
	return result, nil
}

// SearchAll pages through query until the backend returns a short page or
// maxResults resources have been collected. maxResults <= 0 means no limit.
func (c *Client) SearchAll(ctx context.Context, query string, pageSize, maxResults int) (*Result, error) {
	if pageSize <= 0 {
		pageSize = DefaultLimit
	}

	all := &Result{Query: query}
	for offset := 0; ; offset += pageSize {
		limit := pageSize
		if maxResults > 0 && maxResults-len(all.Resources) < limit {
			limit = maxResults - len(all.Resources)
		}
		page, err := c.Search(ctx, Request{Query: query, Limit: limit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("search page at offset %d: %w", offset, err)
		}
		all.Query = page.Query
		all.Resources = append(all.Resources, page.Resources...)
		if page.Total > all.Total {
			all.Total = page.Total
		}
		if len(page.Resources) < limit || (maxResults > 0 && len(all.Resources) >= maxResults) {
			break
		}
	}
	if all.Total < len(all.Resources) {
		all.Total = len(all.Resources)
	}
	return all, nil
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	FileID        string       `xml:"http://owncloud.org/ns fileid"`
	Name          string       `xml:"http://owncloud.org/ns name"`
	ContentType   string       `xml:"DAV: getcontenttype"`
	ContentLength string       `xml:"DAV: getcontentlength"`
	Size          string       `xml:"http://owncloud.org/ns size"`
	LastModified  string       `xml:"DAV: getlastmodified"`
	ResourceType  resourceType `xml:"DAV: resourcetype"`
	Tags          string       `xml:"http://owncloud.org/ns tags"`
	Photo         *photoProp   `xml:"http://owncloud.org/ns photo"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

type photoProp struct {
	CameraMake  string `xml:"http://owncloud.org/ns cameraMake"`
	CameraModel string `xml:"http://owncloud.org/ns cameraModel"`
	TakenAt     string `xml:"http://owncloud.org/ns takenDateTime"`
	ISO         string `xml:"http://owncloud.org/ns iso"`
	FNumber     string `xml:"http://owncloud.org/ns fNumber"`
	FocalLength string `xml:"http://owncloud.org/ns focalLength"`
	Orientation string `xml:"http://owncloud.org/ns orientation"`
}

func decodeMultistatus(body []byte) ([]Resource, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}

	resources := make([]Resource, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		res := Resource{Href: r.Href}
		for _, ps := range r.Propstats {
			if !statusOK(ps.Status) {
				continue
			}
			res.merge(ps.Prop)
		}
		if res.Name == "" {
			res.Name = nameFromHref(r.Href)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func (res *Resource) merge(p prop) {
	if p.FileID != "" {
		res.FileID = p.FileID
	}
	if p.Name != "" {
		res.Name = p.Name
	}
	if p.ContentType != "" {
		res.ContentType = p.ContentType
	}
	for _, size := range []string{p.ContentLength, p.Size} {
		if n, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64); err == nil {
			res.Size = n
		}
	}
	if t, err := time.Parse(time.RFC1123, p.LastModified); err == nil {
		res.LastModified = t
	}
	if p.ResourceType.Collection != nil {
		res.IsFolder = true
	}
	if tags := kql.SplitTags(p.Tags); len(tags) > 0 {
		res.Tags = tags
	}
	if p.Photo != nil {
		res.Photo = p.Photo.decode()
	}
}

func (p *photoProp) decode() *Photo {
	ph := &Photo{
		CameraMake:  p.CameraMake,
		CameraModel: p.CameraModel,
		TakenAt:     p.TakenAt,
	}
	ph.ISO, _ = strconv.Atoi(strings.TrimSpace(p.ISO))
	ph.FNumber, _ = strconv.ParseFloat(strings.TrimSpace(p.FNumber), 64)
	ph.FocalLength, _ = strconv.ParseFloat(strings.TrimSpace(p.FocalLength), 64)
	ph.Orientation, _ = strconv.Atoi(strings.TrimSpace(p.Orientation))
	return ph
}

func statusOK(status string) bool {
	if status == "" {
		return true
	}
	fields := strings.Fields(status)
	return len(fields) >= 2 && strings.HasPrefix(fields[1], "2")
}

func nameFromHref(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
