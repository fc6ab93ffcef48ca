// Package rnaget serves slices of RNA expression matrices as downloadable
// artifacts.
//
// A matrix is an immutable feature × sample table of float64 values stored
// in a BlobStore. A query names a subset of features and samples, an optional
// expression window and the units to report in. The result is encoded in one
// of the supported formats, stored once, and handed out as a ticket that
// stays downloadable until it expires.
//
// # Quick Start
//
//	ctx := context.Background()
//	matrices := blobstore.NewLocalStore("./matrices")
//	artifacts := blobstore.NewLocalStore("./artifacts")
//
//	svc, _ := rnaget.New(ctx, matrices, artifacts, rnaget.WithTTL(time.Hour))
//	defer svc.Close()
//
//	t, _ := svc.QueryFile(ctx, "study.rnam", model.FilterSpec{
//	    FeatureIDs: []string{"ENSG00000000003"},
//	    Units:      model.UnitsTPM,
//	}, model.FormatTSV)
//
//	dl, _ := svc.Download(ctx, t.ID)
//	defer dl.Body.Close()
//	io.Copy(os.Stdout, dl.Body)
//
// # Tickets
//
// Identical requests against the same matrix content share one ticket. A
// ticket is identified by a fingerprint of the matrix identity, the
// normalized filter and the format, so replacing a matrix file never serves
// stale artifacts. Expired tickets report ErrTicketExpired until the sweep
// removes them, after which they report ErrTicketNotFound.
//
// # Units
//
// Values are stored in the units the quantifier reported. FPKM and RPKM are
// interchangeable, FPKM/RPKM convert to TPM, and raw counts convert to CPM.
// Any other pair fails with ErrUnitMismatch before an artifact is created.
//
// # Catalogs
//
// Query resolves expression IDs through a Resolver. MapResolver keeps them in
// memory; the sqlstore package keeps them in SQLite and doubles as a ticket
// ledger for restarts.
package rnaget
