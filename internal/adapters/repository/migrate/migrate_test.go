package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDriverURL(t *testing.T) {
	Convey("Given database urls", t, func() {
		Convey("postgres schemes are rewritten for the pgx v5 driver", func() {
			for _, in := range []string{
				"postgres://u:p@db:5432/drive?sslmode=disable",
				"postgresql://u:p@db:5432/drive?sslmode=disable",
				"pgx5://u:p@db:5432/drive?sslmode=disable",
			} {
				out, err := DriverURL(in)
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "pgx5://u:p@db:5432/drive?sslmode=disable")
			}
		})

		Convey("other schemes are rejected", func() {
			_, err := DriverURL("mysql://u:p@db/drive")
			So(errors.Is(err, ErrInvalidURL), ShouldBeTrue)
		})
	})
}

func TestEmbeddedMigrations(t *testing.T) {
	Convey("Given the embedded migrations", t, func() {
		entries, err := fs.ReadDir(migrations, "migrations")
		So(err, ShouldBeNil)

		Convey("every up migration has a matching down migration", func() {
			ups, downs := 0, 0
			names := map[string]bool{}
			for _, e := range entries {
				names[e.Name()] = true
			}
			for name := range names {
				switch {
				case strings.HasSuffix(name, ".up.sql"):
					ups++
					So(names[strings.TrimSuffix(name, ".up.sql")+".down.sql"], ShouldBeTrue)
				case strings.HasSuffix(name, ".down.sql"):
					downs++
				}
			}
			So(ups, ShouldEqual, 3)
			So(downs, ShouldEqual, ups)
		})

		Convey("the sessions schema enforces one active session per user", func() {
			b, err := fs.ReadFile(migrations, "migrations/000001_sessions.up.sql")
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, "WHERE status = 'active'")
		})
	})
}
