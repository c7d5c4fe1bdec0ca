package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

func readPackFile(path string) (dto.SeedAssessmentsRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return dto.SeedAssessmentsRequest{}, err
	}
	defer f.Close()
	return readPack(f)
}

func readPack(r io.Reader) (dto.SeedAssessmentsRequest, error) {
	var pack dto.SeedAssessmentsRequest
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&pack); err != nil {
		return dto.SeedAssessmentsRequest{}, fmt.Errorf("decode pack: %w", err)
	}
	return pack, nil
}

// validatePack applies the same rules the import endpoint enforces.
func validatePack(pack dto.SeedAssessmentsRequest) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(pack); err != nil {
		return err
	}
	for _, def := range pack.Definitions {
		if err := service.ValidateSeedDefinition(def); err != nil {
			return fmt.Errorf("%s: %w", def.Title, err)
		}
	}
	return nil
}
