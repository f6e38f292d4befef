package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/wind-timeseries/internal/common"
	"github.com/i474232898/wind-timeseries/internal/geocode"
	"github.com/i474232898/wind-timeseries/internal/wind"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. resolver may be
// nil, in which case lat and lon are required.
func RegisterRoutes(app *fiber.App, service *wind.Service, resolver geocode.Resolver) {
	app.Get("/check", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"Status": "OK!"})
	})

	v1 := app.Group("/v1")

	v1.Get("/timeseries/windspeed", func(c *fiber.Ctx) error {
		q, err := bindQuery(c, resolver, true)
		if err != nil {
			return err
		}
		series, err := service.Windspeed(c.UserContext(), q)
		if err != nil {
			return err
		}
		return c.JSON(series)
	})

	v1.Get("/timeseries/winddirection", func(c *fiber.Ctx) error {
		q, err := bindQuery(c, resolver, false)
		if err != nil {
			return err
		}
		series, err := service.Winddirection(c.UserContext(), q)
		if err != nil {
			return err
		}
		return c.JSON(series)
	})

	v1.Get("/windrose", func(c *fiber.Ctx) error {
		q, err := bindQuery(c, resolver, true)
		if err != nil {
			return err
		}
		rose, err := service.Windrose(c.UserContext(), q)
		if err != nil {
			return err
		}
		return c.JSON(rose)
	})
}

// pointQuery holds the query parameters shared by all wind endpoints.
type pointQuery struct {
	Lat       string `validate:"required_without=Address"`
	Lon       string `validate:"required_without=Address"`
	Address   string `validate:"omitempty,max=256"`
	Height    string `validate:"required"`
	StartDate string `validate:"required"`
	StopDate  string `validate:"required"`
}

// methodQuery holds the interpolation choices of windspeed and windrose.
type methodQuery struct {
	Spatial  string `validate:"required"`
	Vertical string `validate:"required"`
}

func bindQuery(c *fiber.Ctx, resolver geocode.Resolver, withMethods bool) (wind.Query, error) {
	var q wind.Query

	p := pointQuery{
		Lat:       strings.TrimSpace(c.Query("lat")),
		Lon:       strings.TrimSpace(c.Query("lon")),
		Address:   strings.TrimSpace(c.Query("address")),
		Height:    c.Query("height"),
		StartDate: c.Query("start_date"),
		StopDate:  c.Query("stop_date"),
	}
	if err := validate.Struct(p); err != nil {
		return q, badRequest(err)
	}

	var err error
	if q.Height, err = common.ParseHeight(p.Height); err != nil {
		return q, badRequest(err)
	}
	if q.Start, err = common.ParseDate(p.StartDate); err != nil {
		return q, badRequest(err)
	}
	if q.Stop, err = common.ParseDate(p.StopDate); err != nil {
		return q, badRequest(err)
	}

	if p.Lat != "" && p.Lon != "" {
		if q.Lat, err = strconv.ParseFloat(p.Lat, 64); err != nil {
			return q, badRequest(err)
		}
		if q.Lon, err = strconv.ParseFloat(p.Lon, 64); err != nil {
			return q, badRequest(err)
		}
	} else {
		if resolver == nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "address lookup is not available; lat and lon are required")
		}
		ll, err := resolver.Resolve(c.UserContext(), p.Address)
		if err != nil {
			if errors.Is(err, geocode.ErrNotConfigured) {
				return q, fiber.NewError(fiber.StatusBadRequest, "address lookup is not available; lat and lon are required")
			}
			return q, err
		}
		q.Lat, q.Lon = ll.Lat, ll.Lon
	}

	if !withMethods {
		return q, nil
	}
	m := methodQuery{
		Spatial:  c.Query("spatial_interpolation"),
		Vertical: c.Query("vertical_interpolation"),
	}
	if err := validate.Struct(m); err != nil {
		return q, badRequest(err)
	}
	if q.Spatial, err = wind.ParseSpatialMethod(m.Spatial); err != nil {
		return q, err
	}
	if q.Vertical, err = wind.ParseVerticalMethod(m.Vertical); err != nil {
		return q, err
	}
	return q, nil
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}
